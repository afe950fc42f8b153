package orders

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusReserved  Status = "RESERVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusReserved: true, StatusCancelled: true, StatusFailed: true},
	StatusReserved:  {StatusCompleted: true, StatusCancelled: true, StatusFailed: true},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusFailed:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal: tidak ada transisi keluar lagi.
func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("status %q: %w", s, domain.ErrInvalidInput)
	}
	return st, nil
}
