package connectors

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	mathrand "math/rand/v2"
	"net/url"
	"time"
)

var (
	// ErrNotFound is returned for unknown or expired connection tokens.
	ErrNotFound = errors.New("connection not found")
	// ErrNotConnected is returned when the service link is not established.
	ErrNotConnected = errors.New("service is not connected")
)

const (
	// tokenTTL is how long a pending connection may be confirmed.
	tokenTTL = 15 * time.Minute
	// connectDelay is how long the simulated handshake takes before a
	// status poll has a chance of reporting connected.
	connectDelay = 5 * time.Minute
	// connectChance is the per-poll probability of the simulated
	// handshake completing once connectDelay has elapsed.
	connectChance = 0.6
)

type Contact struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	Handle         string `json:"handle"`
	ProfilePicture string `json:"profilePicture"`
}

// ConnectInfo is returned from Connect; the client renders ConnectURI
// (e.g. as a QR code) for the user to confirm on the external service.
type ConnectInfo struct {
	Token      string    `json:"token"`
	ConnectURI string    `json:"connectUri"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type Status struct {
	Connected  bool      `json:"connected"`
	LastSyncAt time.Time `json:"lastSyncAt,omitempty"`
}

// OutboundMessage is the simulated result of sending a message through
// an established connection.
type OutboundMessage struct {
	Id      string    `json:"id"`
	To      string    `json:"to"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

// Service simulates one external messaging integration. Real traffic
// never leaves the process: connection state lives in the injected
// TokenStore and contacts are canned.
type Service struct {
	log          *log.Logger
	store        TokenStore
	name         string
	scheme       string
	messagesPath string
	contacts     []Contact

	// now and chance are injected so tests can drive the simulated
	// handshake deterministically.
	now    func() time.Time
	chance func() float64
}

func newService(logger *log.Logger, store TokenStore, name, scheme, messagesPath string, contacts []Contact) *Service {
	return &Service{
		log:          logger,
		store:        store,
		name:         name,
		scheme:       scheme,
		messagesPath: messagesPath,
		contacts:     contacts,
		now:          time.Now,
		chance:       mathrand.Float64,
	}
}

func NewWhatsApp(logger *log.Logger, store TokenStore) *Service {
	return newService(logger, store, "whatsapp", "whatsapp", "messages", whatsappContacts)
}

func NewInstagram(logger *log.Logger, store TokenStore) *Service {
	return newService(logger, store, "instagram", "instagram", "direct-messages", instagramContacts)
}

// Name returns the provider name ("whatsapp" or "instagram").
func (s *Service) Name() string {
	return s.name
}

// TokenStore exposes the backing store, letting callers resolve a
// token's handle without another service round trip.
func (s *Service) TokenStore() TokenStore {
	return s.store
}

// MessagesPath returns the REST path segment for outbound sends:
// "messages" on whatsapp, "direct-messages" on instagram.
func (s *Service) MessagesPath() string {
	return s.messagesPath
}

// Connect starts a pending connection for handle (a phone number or
// account name) and returns the token and URI the user confirms with.
func (s *Service) Connect(ctx context.Context, handle string) (ConnectInfo, error) {
	token, err := generateToken()
	if err != nil {
		return ConnectInfo{}, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	conn := Connection{
		Handle:    handle,
		CreatedAt: now,
		ExpiresAt: now.Add(tokenTTL),
	}

	if err := s.store.Put(ctx, token, conn); err != nil {
		return ConnectInfo{}, fmt.Errorf("save connection: %w", err)
	}

	s.log.Printf("%s: pending connection created", s.name)

	return ConnectInfo{
		Token:      token,
		ConnectURI: fmt.Sprintf("%s://connect?token=%s&handle=%s", s.scheme, token, url.QueryEscape(handle)),
		ExpiresAt:  conn.ExpiresAt,
	}, nil
}

// Status reports the connection state for token, advancing the simulated
// handshake: once connectDelay has elapsed, each poll of a pending,
// unexpired connection completes with probability connectChance.
func (s *Service) Status(ctx context.Context, token string) (Status, error) {
	conn, ok, err := s.store.Get(ctx, token)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{Connected: false}, nil
	}

	now := s.now()
	if !conn.Connected && now.Before(conn.ExpiresAt) &&
		now.Sub(conn.CreatedAt) > connectDelay && s.chance() < connectChance {
		conn.Connected = true
		conn.LastSyncAt = now
		if err := s.store.Put(ctx, token, conn); err != nil {
			return Status{}, fmt.Errorf("save connection: %w", err)
		}
		s.log.Printf("%s: connection established", s.name)
	}

	return Status{
		Connected:  conn.Connected,
		LastSyncAt: conn.LastSyncAt,
	}, nil
}

// Disconnect drops the connection for token.
func (s *Service) Disconnect(ctx context.Context, token string) error {
	_, ok, err := s.store.Get(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if err := s.store.Delete(ctx, token); err != nil {
		return err
	}

	s.log.Printf("%s: connection removed", s.name)

	return nil
}

// SendMessage simulates delivering an outbound message through an
// established connection and returns a mock message id and timestamp.
func (s *Service) SendMessage(ctx context.Context, token, to, message string) (OutboundMessage, error) {
	conn, ok, err := s.store.Get(ctx, token)
	if err != nil {
		return OutboundMessage{}, err
	}
	if !ok {
		return OutboundMessage{}, ErrNotFound
	}
	if !conn.Connected {
		return OutboundMessage{}, ErrNotConnected
	}

	id, err := generateMessageId(s.name)
	if err != nil {
		return OutboundMessage{}, fmt.Errorf("generate message id: %w", err)
	}

	s.log.Printf("%s: outbound message sent", s.name)

	return OutboundMessage{
		Id:      id,
		To:      to,
		Message: message,
		SentAt:  s.now(),
	}, nil
}

// Contacts returns the provider's contact list for an established
// connection.
func (s *Service) Contacts(ctx context.Context, token string) ([]Contact, error) {
	conn, ok, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !conn.Connected {
		return nil, ErrNotConnected
	}

	return s.contacts, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}

func generateMessageId(service string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s", service, hex.EncodeToString(buf)), nil
}

var whatsappContacts = []Contact{
	{Id: "1", Name: "Alice Smith", Handle: "+1234567890", ProfilePicture: "https://i.pravatar.cc/150?img=1"},
	{Id: "2", Name: "Bob Johnson", Handle: "+1987654321", ProfilePicture: "https://i.pravatar.cc/150?img=2"},
	{Id: "3", Name: "Charlie Williams", Handle: "+1122334455", ProfilePicture: "https://i.pravatar.cc/150?img=3"},
	{Id: "4", Name: "Diana Brown", Handle: "+5566778899", ProfilePicture: "https://i.pravatar.cc/150?img=4"},
	{Id: "5", Name: "Edward Davis", Handle: "+9988776655", ProfilePicture: "https://i.pravatar.cc/150?img=5"},
}

var instagramContacts = []Contact{
	{Id: "1", Name: "Fiona Green", Handle: "fiona.green", ProfilePicture: "https://i.pravatar.cc/150?img=6"},
	{Id: "2", Name: "George Harris", Handle: "george_h", ProfilePicture: "https://i.pravatar.cc/150?img=7"},
	{Id: "3", Name: "Hannah Irving", Handle: "hannah.irving", ProfilePicture: "https://i.pravatar.cc/150?img=8"},
	{Id: "4", Name: "Ian Jackson", Handle: "ianj", ProfilePicture: "https://i.pravatar.cc/150?img=9"},
	{Id: "5", Name: "Julia King", Handle: "julia.king", ProfilePicture: "https://i.pravatar.cc/150?img=10"},
}
