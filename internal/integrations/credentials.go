// Package integrations models per-tenant provider credentials as a closed set
// of typed variants, decoded and validated where they enter the system.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind tags a credentials variant.
type Kind string

const (
	KindMetaWhatsApp Kind = "meta_whatsapp"
	KindMercadoPago  Kind = "mercado_pago"
	KindBankTransfer Kind = "bank_transfer"
)

var (
	ErrUnknownKind        = errors.New("integrations: unknown credentials kind")
	ErrInvalidCredentials = errors.New("integrations: invalid credentials")
	ErrNotConfigured      = errors.New("integrations: credentials not configured")
)

// Credentials is implemented only by the variants in this package.
type Credentials interface {
	Kind() Kind
	Validate() error
	isCredentials()
}

// MetaWhatsApp authenticates WhatsApp Cloud API template sends.
type MetaWhatsApp struct {
	PhoneNumberID     string `json:"phone_number_id"`
	AccessToken       string `json:"access_token"`
	BusinessAccountID string `json:"business_account_id,omitempty"`
	APIVersion        string `json:"api_version,omitempty"`
}

func (MetaWhatsApp) Kind() Kind { return KindMetaWhatsApp }
func (MetaWhatsApp) isCredentials() {}

func (c MetaWhatsApp) Validate() error {
	if strings.TrimSpace(c.PhoneNumberID) == "" {
		return fmt.Errorf("%w: phone_number_id is required", ErrInvalidCredentials)
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("%w: access_token is required", ErrInvalidCredentials)
	}
	return nil
}

// MercadoPago holds payment credentials. Payments are handled outside the
// scheduling engine; the variant exists so tenants can store it safely.
type MercadoPago struct {
	AccessToken   string `json:"access_token"`
	PublicKey     string `json:"public_key"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func (MercadoPago) Kind() Kind { return KindMercadoPago }
func (MercadoPago) isCredentials() {}

func (c MercadoPago) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("%w: access_token is required", ErrInvalidCredentials)
	}
	if strings.TrimSpace(c.PublicKey) == "" {
		return fmt.Errorf("%w: public_key is required", ErrInvalidCredentials)
	}
	return nil
}

// BankTransfer describes manual transfer instructions shown to patients.
type BankTransfer struct {
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number,omitempty"`
	RoutingCode   string `json:"routing_code,omitempty"`
	PixKey        string `json:"pix_key,omitempty"`
}

func (BankTransfer) Kind() Kind { return KindBankTransfer }
func (BankTransfer) isCredentials() {}

func (c BankTransfer) Validate() error {
	if strings.TrimSpace(c.AccountHolder) == "" {
		return fmt.Errorf("%w: account_holder is required", ErrInvalidCredentials)
	}
	if strings.TrimSpace(c.AccountNumber) == "" && strings.TrimSpace(c.PixKey) == "" {
		return fmt.Errorf("%w: account_number or pix_key is required", ErrInvalidCredentials)
	}
	return nil
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMetaWhatsApp, KindMercadoPago, KindBankTransfer:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Parse decodes raw JSON into the variant for kind. Unknown fields are rejected.
func Parse(kind Kind, raw []byte) (Credentials, error) {
	var creds Credentials
	switch kind {
	case KindMetaWhatsApp:
		var c MetaWhatsApp
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		creds = c
	case KindMercadoPago:
		var c MercadoPago
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		creds = c
	case KindBankTransfer:
		var c BankTransfer
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		creds = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Marshal encodes a validated variant for storage.
func Marshal(c Credentials) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil credentials", ErrInvalidCredentials)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return nil
}

// Source reads a tenant's stored credentials of one kind.
type Source interface {
	GetCredentials(ctx context.Context, tenantID uuid.UUID, kind Kind) (Credentials, error)
}

// WhatsApp loads and type-asserts the tenant's WhatsApp credentials.
func WhatsApp(ctx context.Context, src Source, tenantID uuid.UUID) (MetaWhatsApp, error) {
	if src == nil {
		return MetaWhatsApp{}, ErrNotConfigured
	}
	creds, err := src.GetCredentials(ctx, tenantID, KindMetaWhatsApp)
	if err != nil {
		return MetaWhatsApp{}, err
	}
	wa, ok := creds.(MetaWhatsApp)
	if !ok {
		return MetaWhatsApp{}, fmt.Errorf("%w: stored credentials are %s", ErrInvalidCredentials, creds.Kind())
	}
	return wa, nil
}

// StaticSource serves credentials from memory. Used by tests and local runs.
type StaticSource map[uuid.UUID]map[Kind]Credentials

// GetCredentials implements Source.
func (s StaticSource) GetCredentials(_ context.Context, tenantID uuid.UUID, kind Kind) (Credentials, error) {
	byKind, ok := s[tenantID]
	if !ok {
		return nil, ErrNotConfigured
	}
	c, ok := byKind[kind]
	if !ok {
		return nil, ErrNotConfigured
	}
	return c, nil
}
