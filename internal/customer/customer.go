package customer

import (
	"errors"
	"strings"
)

var ErrInvalidCustomer = errors.New("invalid customer")

// Customer ids are assigned by the calling application, not generated here.
type Customer struct {
	ID    string `json:"customer_id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c *Customer) Normalize() error {
	c.ID = strings.TrimSpace(c.ID)
	c.Email = strings.TrimSpace(c.Email)
	c.Name = strings.TrimSpace(c.Name)
	if c.ID == "" {
		return errors.Join(ErrInvalidCustomer, errors.New("customer_id is required"))
	}
	return nil
}
