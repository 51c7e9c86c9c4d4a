package gateway

import (
	"encoding/xml"

	"github.com/shopspring/decimal"
)

// ResultCode is the numeric verdict of the bank protocol.
type ResultCode int

const (
	ResultOK                   ResultCode = 0
	ResultTemporaryError       ResultCode = 1
	ResultInvalidAccountFormat ResultCode = 4
	ResultAccountNotFound      ResultCode = 5
	ResultForbidden            ResultCode = 7
	ResultAccountNotActive     ResultCode = 79
	ResultAmountTooSmall       ResultCode = 241
	ResultAmountTooLarge       ResultCode = 242
	ResultCannotCheckAccount   ResultCode = 243
	ResultOtherError           ResultCode = 300
)

func (c ResultCode) Comment() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultTemporaryError:
		return "Temporary error, please retry"
	case ResultInvalidAccountFormat:
		return "Invalid account format"
	case ResultAccountNotFound:
		return "Account not found"
	case ResultForbidden:
		return "Payments are not accepted"
	case ResultAccountNotActive:
		return "Account is not active"
	case ResultAmountTooSmall:
		return "Amount too small"
	case ResultAmountTooLarge:
		return "Amount too large"
	case ResultCannotCheckAccount:
		return "Cannot check account"
	default:
		return "Other error"
	}
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Response is one protocol reply. PrvTxn is only rendered when set.
type Response struct {
	OsmpTxnID string
	PrvTxn    string
	Sum       decimal.Decimal
	Result    ResultCode
	Comment   string
}

// xmlResponse fixes the element order of the wire format.
type xmlResponse struct {
	XMLName   xml.Name `xml:"response"`
	OsmpTxnID string   `xml:"osmp_txn_id"`
	PrvTxn    string   `xml:"prv_txn,omitempty"`
	Sum       string   `xml:"sum"`
	Result    int      `xml:"result"`
	Comment   string   `xml:"comment"`
}

func (r Response) MarshalXMLBody() ([]byte, error) {
	body, err := xml.Marshal(xmlResponse{
		OsmpTxnID: r.OsmpTxnID,
		PrvTxn:    r.PrvTxn,
		Sum:       r.Sum.StringFixed(2),
		Result:    int(r.Result),
		Comment:   r.Comment,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), body...), nil
}

// ForbiddenXML is the reply for callers outside the allow-list; it has no osmp_txn_id,
// sum or prv_txn.
func ForbiddenXML() []byte {
	return []byte(xmlHeader + `<response><result>403</result><comment>access denied</comment></response>`)
}
