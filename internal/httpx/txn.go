package httpx

import (
	"github.com/hashicorp/go-uuid"
)

// txn is one request/response exchange on a connection. A connection may
// hold several in order, but only one is current for response writing.
type txn struct {
	id  string
	req *Request

	out struct {
		size      int64 // body bytes written to the client
		headersSz int   // response header bytes written
	}

	hit bool
}

func newTxn(req *Request) *txn {
	id, _ := uuid.GenerateUUID()
	return &txn{id: id, req: req}
}
