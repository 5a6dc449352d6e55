/**
 * @description
 * The recipient resolver. A query resolves against three sources, in
 * priority order:
 *
 *   1. recent counterparties from the sender's transaction feed (recency
 *      order, annotated with frequency),
 *   2. saved contacts from the directory service,
 *   3. a manual candidate, synthesized when the query itself parses as an
 *      email address, phone number, or wallet address.
 *
 * Matching is a case-insensitive substring check on display name and channel
 * value. A directory outage degrades the result set instead of failing it:
 * recents and the manual candidate are still returned.
 */

package app

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
	"github.com/kashly/transfer-service/internal/store"
	"github.com/kashly/transfer-service/pkg/directoryclient"
)

const defaultRecentLimit = 10

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern  = regexp.MustCompile(`^\+?[0-9][0-9\s().-]{5,18}[0-9]$`)
	walletPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)
)

// ContactDirectory is the slice of the directory service the resolver needs.
type ContactDirectory interface {
	SearchContacts(ctx context.Context, userID, query string) ([]directoryclient.Contact, error)
}

// RecipientResolver merges recents, contacts, and manual input into one
// candidate list.
type RecipientResolver struct {
	repo        store.Repository
	directory   ContactDirectory
	recentLimit int
}

func NewRecipientResolver(repo store.Repository, directory ContactDirectory) *RecipientResolver {
	return &RecipientResolver{
		repo:        repo,
		directory:   directory,
		recentLimit: defaultRecentLimit,
	}
}

// Resolve returns the candidates for the query. An empty query returns all
// recents and contacts with no manual candidate.
func (r *RecipientResolver) Resolve(ctx context.Context, userID uuid.UUID, query string) ([]domain.Recipient, error) {
	query = strings.TrimSpace(query)
	needle := strings.ToLower(query)

	recents, err := r.repo.FindRecentRecipients(ctx, userID, r.recentLimit)
	if err != nil {
		return nil, err
	}

	var candidates []domain.Recipient
	seen := make(map[string]struct{})
	for _, recent := range recents {
		if !matchesQuery(&recent.Recipient, needle) {
			continue
		}
		candidates = append(candidates, recent.Recipient)
		seen[strings.ToLower(recent.ChannelValue)] = struct{}{}
	}

	contacts, err := r.searchDirectory(ctx, userID, query)
	if err != nil {
		log.Printf("level=warn component=recipient_resolver msg=\"directory unavailable; returning partial results\" user_id=%s err=%v", userID, err)
	}
	for _, contact := range contacts {
		candidate := contactToRecipient(contact)
		if candidate == nil || !matchesQuery(candidate, needle) {
			continue
		}
		if _, dup := seen[strings.ToLower(candidate.ChannelValue)]; dup {
			continue
		}
		candidates = append(candidates, *candidate)
		seen[strings.ToLower(candidate.ChannelValue)] = struct{}{}
	}

	if channel, ok := ClassifyChannel(query); ok {
		if _, dup := seen[needle]; !dup {
			// DisplayName is intentionally empty: the caller must supply a
			// name before this candidate becomes selectable.
			candidates = append(candidates, domain.Recipient{
				Channel:      channel,
				ChannelValue: query,
				IsManual:     true,
			})
		}
	}

	return candidates, nil
}

func (r *RecipientResolver) searchDirectory(ctx context.Context, userID uuid.UUID, query string) ([]directoryclient.Contact, error) {
	if r.directory == nil {
		return nil, nil
	}
	return r.directory.SearchContacts(ctx, userID.String(), query)
}

func contactToRecipient(contact directoryclient.Contact) *domain.Recipient {
	channel := domain.ChannelType(strings.ToLower(contact.Channel))
	switch channel {
	case domain.ChannelEmail, domain.ChannelPhone, domain.ChannelWallet:
	default:
		return nil
	}
	recipient := domain.Recipient{
		DisplayName:  contact.DisplayName,
		Channel:      channel,
		ChannelValue: contact.ChannelValue,
	}
	if id, err := uuid.Parse(contact.ID); err == nil {
		recipient.ID = id
	}
	return &recipient
}

func matchesQuery(recipient *domain.Recipient, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(recipient.DisplayName), needle) ||
		strings.Contains(strings.ToLower(recipient.ChannelValue), needle)
}

// ClassifyChannel reports which channel a raw address belongs to. Email is
// checked first, then phone, then wallet, so an ambiguous digit string is a
// phone number rather than a wallet address.
func ClassifyChannel(value string) (domain.ChannelType, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	switch {
	case emailPattern.MatchString(value):
		return domain.ChannelEmail, true
	case phonePattern.MatchString(value) && countDigits(value) >= 7:
		return domain.ChannelPhone, true
	case walletPattern.MatchString(value):
		return domain.ChannelWallet, true
	}
	return "", false
}

func countDigits(value string) int {
	n := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// NewManualRecipient builds a selectable recipient from manual input. Both
// the display name and a well-formed channel value are required, and the
// value must actually parse as the claimed channel.
func NewManualRecipient(displayName string, channel domain.ChannelType, channelValue string) (*domain.Recipient, error) {
	displayName = strings.TrimSpace(displayName)
	channelValue = strings.TrimSpace(channelValue)
	if displayName == "" {
		return nil, domain.NewValidationError(domain.ValidationIncompleteRecipient, "recipient name is required")
	}
	if channelValue == "" {
		return nil, domain.NewValidationError(domain.ValidationIncompleteRecipient, "recipient address is required")
	}
	detected, ok := ClassifyChannel(channelValue)
	if !ok || detected != channel {
		return nil, domain.NewValidationError(domain.ValidationIncompleteRecipient,
			"%q is not a valid %s address", channelValue, channel)
	}
	return &domain.Recipient{
		DisplayName:  displayName,
		Channel:      channel,
		ChannelValue: channelValue,
		IsManual:     true,
	}, nil
}
