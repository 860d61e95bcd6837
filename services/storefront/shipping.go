package main

import "strings"

// Shipping form field names, as used in the API payloads and the error map.
const (
	FieldFullName   = "full_name"
	FieldPhone      = "phone"
	FieldAddress    = "address"
	FieldCity       = "city"
	FieldPostalCode = "postal_code"
)

// ValidateShipping checks every required field for non-emptiness after trimming
// whitespace. The returned map holds an entry per failing field and is empty iff
// the details are valid. Validation is pure and re-run in full on every call.
func ValidateShipping(d ShippingDetails) map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(d.FullName) == "" {
		errs[FieldFullName] = "Isi nama lengkap"
	}
	if strings.TrimSpace(d.Phone) == "" {
		errs[FieldPhone] = "Isi nomor telepon"
	}
	if strings.TrimSpace(d.Address) == "" {
		errs[FieldAddress] = "Isi alamat lengkap"
	}
	if strings.TrimSpace(d.City) == "" {
		errs[FieldCity] = "Isi kota"
	}
	if strings.TrimSpace(d.PostalCode) == "" {
		errs[FieldPostalCode] = "Isi kode pos"
	}
	return errs
}

// Empty reports whether every shipping field is blank after trimming. Used to
// decide whether leaving checkout needs a data-loss confirmation.
func (d ShippingDetails) Empty() bool {
	return strings.TrimSpace(d.FullName) == "" &&
		strings.TrimSpace(d.Phone) == "" &&
		strings.TrimSpace(d.Address) == "" &&
		strings.TrimSpace(d.City) == "" &&
		strings.TrimSpace(d.PostalCode) == ""
}
