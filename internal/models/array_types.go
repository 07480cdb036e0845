package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// StringArray is a custom type for handling TEXT[] arrays in PostgreSQL
type StringArray []string

// Value implements the driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]string(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]string)(a)
	return pq.Array(slice).Scan(src)
}

// PassengerList is stored as JSONB
type PassengerList []Passenger

// Value implements the driver.Valuer interface
func (p PassengerList) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface
func (p *PassengerList) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, err := jsonBytes(value)
	if err != nil {
		return errors.New("type assertion to []byte failed for PassengerList")
	}
	return json.Unmarshal(bytes, p)
}

// AttractionList is stored as JSONB
type AttractionList []AttractionSelection

// Value implements the driver.Valuer interface
func (a AttractionList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface
func (a *AttractionList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, err := jsonBytes(value)
	if err != nil {
		return errors.New("type assertion to []byte failed for AttractionList")
	}
	return json.Unmarshal(bytes, a)
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported JSONB source type")
	}
}
