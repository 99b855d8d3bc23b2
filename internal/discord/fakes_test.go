package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/ashureev/points-bridge/internal/feed"
	"github.com/ashureev/points-bridge/internal/store"
	"github.com/bwmarrin/discordgo"
)

type fakeGateway struct {
	mu       sync.Mutex
	openErrs []error
	failOpen error
	block    chan struct{}
	opens    int
	closes   int
	handlers map[int]interface{}
	nextID   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{handlers: make(map[int]interface{})}
}

func (g *fakeGateway) Open() error {
	g.mu.Lock()
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.opens++
	if len(g.openErrs) > 0 {
		err := g.openErrs[0]
		g.openErrs = g.openErrs[1:]
		return err
	}
	return g.failOpen
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	return nil
}

func (g *fakeGateway) AddHandler(handler interface{}) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.handlers[id] = handler
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.handlers, id)
	}
}

func (g *fakeGateway) fireDisconnect() {
	g.mu.Lock()
	var hs []func(*discordgo.Session, *discordgo.Disconnect)
	for _, h := range g.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Disconnect)); ok {
			hs = append(hs, fn)
		}
	}
	g.mu.Unlock()
	for _, fn := range hs {
		fn(nil, &discordgo.Disconnect{})
	}
}

func (g *fakeGateway) closeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}

func (g *fakeGateway) openCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opens
}

type fakeConnector struct {
	ready bool
}

func (c fakeConnector) EnsureConnected(context.Context) bool { return c.ready }

type fakeAPI struct {
	mu         sync.Mutex
	channelErr error
	sendErr    error
	editErr    error
	messages   map[string]*discordgo.Message
	sent       []*discordgo.MessageSend
	edits      []*discordgo.MessageEdit
	nextID     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: make(map[string]*discordgo.Message)}
}

func (a *fakeAPI) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channelErr != nil {
		return nil, a.channelErr
	}
	return &discordgo.Channel{ID: channelID}, nil
}

func (a *fakeAPI) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg, ok := a.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("HTTP 404 Not Found: unknown message %s", messageID)
	}
	return msg, nil
}

func (a *fakeAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	a.nextID++
	msg := &discordgo.Message{
		ID:         fmt.Sprintf("msg-%d", a.nextID),
		ChannelID:  channelID,
		Content:    data.Content,
		Embeds:     data.Embeds,
		Components: data.Components,
	}
	a.messages[msg.ID] = msg
	a.sent = append(a.sent, data)
	return msg, nil
}

func (a *fakeAPI) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editErr != nil {
		return nil, a.editErr
	}
	a.edits = append(a.edits, m)
	msg, ok := a.messages[m.ID]
	if !ok {
		return nil, fmt.Errorf("HTTP 404 Not Found: unknown message %s", m.ID)
	}
	if m.Content != nil {
		msg.Content = *m.Content
	}
	if m.Embeds != nil {
		msg.Embeds = *m.Embeds
	}
	if m.Components != nil {
		msg.Components = *m.Components
	}
	return msg, nil
}

func (a *fakeAPI) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func (a *fakeAPI) editCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.edits)
}

func (a *fakeAPI) message(id string) *discordgo.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messages[id]
}

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	receipts map[string]*domain.Receipt
	orders   map[string]*domain.Order
	setErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*domain.User),
		receipts: make(map[string]*domain.Receipt),
		orders:   make(map[string]*domain.Order),
	}
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) GetReceipt(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, store.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) SetReceiptMessageID(_ context.Context, id, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	r, ok := s.receipts[id]
	if !ok {
		return store.ErrNotFound
	}
	r.MessageID = messageID
	return nil
}

func (s *fakeStore) ApproveReceipt(_ context.Context, id string, points int) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, store.ErrNotFound)
	}
	if r.Status != domain.ReceiptPending {
		return nil, fmt.Errorf("receipt %s: %w", id, store.ErrInvalidTransition)
	}
	r.Status = domain.ReceiptApproved
	r.PointsAwarded = points
	if u, ok := s.users[r.UserID]; ok {
		u.Points += points
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) RejectReceipt(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, store.ErrNotFound)
	}
	if r.Status != domain.ReceiptPending {
		return nil, fmt.Errorf("receipt %s: %w", id, store.ErrInvalidTransition)
	}
	r.Status = domain.ReceiptRejected
	cp := *r
	return &cp, nil
}

func (s *fakeStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) SetOrderMessageID(_ context.Context, id, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	o, ok := s.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	o.MessageID = messageID
	return nil
}

func (s *fakeStore) TransitionOrder(_ context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	if o.Status != from {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrInvalidTransition)
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (s *fakeStore) userPoints(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].Points
}

type fakePublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *fakePublisher) Publish(ev feed.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var errBoom = errors.New("boom")

var (
	coffee = domain.Product{ID: "p-coffee", Name: "Coffee", Points: 5}
	mug    = domain.Product{ID: "p-mug", Name: "Mug", Points: 10, ImageURL: "https://cdn.example.com/mug.png"}
)

// seed stores a user, a single-product receipt r1, a multi-product receipt
// r2 and an order o1.
func seed(s *fakeStore) {
	s.users["u1"] = &domain.User{ID: "u1", Username: "alice", Email: "alice@example.com"}
	s.receipts["r1"] = &domain.Receipt{
		ID: "r1", UserID: "u1", ImageURL: "https://cdn.example.com/r1.jpg",
		Status: domain.ReceiptPending,
		Items:  []domain.LineItem{{Product: mug, Quantity: 1}},
	}
	s.receipts["r2"] = &domain.Receipt{
		ID: "r2", UserID: "u1", ImageURL: "https://cdn.example.com/r2.jpg",
		Status: domain.ReceiptPending,
		Items:  []domain.LineItem{{Product: coffee, Quantity: 2}, {Product: mug, Quantity: 1}},
	}
	s.orders["o1"] = &domain.Order{
		ID: "o1", UserID: "u1", Status: domain.OrderPending,
		Items:       []domain.LineItem{{Product: mug, Quantity: 2}},
		TotalPoints: 20,
	}
}
