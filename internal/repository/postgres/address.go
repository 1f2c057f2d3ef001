package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/campaign"
	"github.com/ignite/dormant-leads/internal/signal"
)

// AddressBook resolves hashed lines to the addresses subscribers consented
// to be reached on. Revoked consent is treated as absent.
type AddressBook struct{ db *sql.DB }

// NewAddressBook creates a Postgres-backed address book.
func NewAddressBook(db *sql.DB) *AddressBook { return &AddressBook{db: db} }

// Address returns the consented address for line on channel.
func (a *AddressBook) Address(ctx context.Context, line string, channel domain.Channel) (string, error) {
	addr, err := a.lookup(ctx, line, channel)
	if err == sql.ErrNoRows {
		return "", campaign.ErrNoAddress
	}
	return addr, err
}

// PhoneNumber returns the consented MSISDN for line. The live signal source
// needs it to query the operator APIs.
func (a *AddressBook) PhoneNumber(ctx context.Context, line string) (string, error) {
	addr, err := a.lookup(ctx, line, domain.ChannelSMS)
	if err == sql.ErrNoRows {
		return "", signal.ErrNoNumber
	}
	return addr, err
}

func (a *AddressBook) lookup(ctx context.Context, line string, channel domain.Channel) (string, error) {
	var addr string
	err := a.db.QueryRowContext(ctx, `
		SELECT address FROM consented_contacts
		WHERE hashed_line = $1 AND channel = $2 AND revoked_at IS NULL`,
		line, channel).Scan(&addr)
	if err == sql.ErrNoRows {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("lookup address: %w", err)
	}
	return addr, nil
}
