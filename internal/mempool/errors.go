package mempool

import "github.com/squidcore/proxy/internal/errs"

const (
	ErrAllocFailed errs.CodeError = errs.MinMemPool + iota
	ErrInvalidObjectSize
	ErrPoolClosed
)

func init() {
	errs.Register(errs.MinMemPool, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrAllocFailed:
		return "mempool: system allocator failed"
	case ErrInvalidObjectSize:
		return "mempool: object size must be > 0"
	case ErrPoolClosed:
		return "mempool: pool is closed"
	default:
		return ""
	}
}
