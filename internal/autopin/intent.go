package autopin

import (
	"fmt"

	"nftpin/internal/pinstore"
)

// Operation is the kind of work an intent asks for.
type Operation int

const (
	OpAdd Operation = iota
	OpDelete
	OpValidate
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpValidate:
		return "validate"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Intent is one queued unit of reconciliation work.
type Intent struct {
	Token     pinstore.TokenKey
	Path      string
	Service   string
	Operation Operation
	Attempt   int
}

// Equal reports whether two intents describe the same work. Path already
// encodes the service.
func (i Intent) Equal(other Intent) bool {
	return i.Operation == other.Operation && i.Path == other.Path
}

func (i Intent) String() string {
	return fmt.Sprintf("%s(%s)", i.Operation, i.Path)
}

func newIntent(service string, token pinstore.TokenKey, op Operation) (Intent, error) {
	path, err := pinstore.EncodePath(service, token)
	if err != nil {
		return Intent{}, err
	}
	return Intent{Token: token, Path: path, Service: service, Operation: op}, nil
}
