package models

import "errors"

var (
	ErrInvalidLoanTerms = errors.New("invalid loan terms")
	ErrInvalidPayment   = errors.New("invalid payment")
	ErrLoanNotFound     = errors.New("loan not found")
	ErrCustomerNotFound = errors.New("customer not found or has no loans")
	ErrArithmetic       = errors.New("arithmetic error")
)
