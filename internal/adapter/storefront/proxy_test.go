package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/bridge"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

type sentCommand struct {
	cmdType    domain.CommandType
	payload    any
	awaitReply bool
}

// scriptedSender answers every awaited command with a fixed reply.
type scriptedSender struct {
	mu    sync.Mutex
	reply *bridge.Reply
	err   error
	sent  []sentCommand
}

func (s *scriptedSender) Send(_ context.Context, cmdType domain.CommandType, payload any, awaitReply bool) (*bridge.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentCommand{cmdType, payload, awaitReply})
	if !awaitReply {
		return nil, nil
	}
	return s.reply, s.err
}

func replyWith(result string) *scriptedSender {
	return &scriptedSender{reply: &bridge.Reply{Result: json.RawMessage(result)}}
}

var lamp = ListingInput{ProductID: "prod_1", Title: "Sunset Lamp", Handle: "sunset-lamp", PriceAUD: 49.95, Status: "draft"}

func TestCreateListingWrappedReply(t *testing.T) {
	sender := replyWith(`{"listing":{"id":1234567,"handle":"sunset-lamp","status":"draft","variants":[{"id":998,"price":"49.95"}]}}`)
	proxy := NewProxy(sender, nil)

	out, err := proxy.CreateListing(context.Background(), lamp)
	require.NoError(t, err)
	res, confirmed := out.Get()
	require.True(t, confirmed)
	assert.Equal(t, "1234567", res.ListingID)
	assert.Equal(t, "998", res.VariantID)
	assert.Equal(t, 49.95, res.PriceAUD)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, domain.CommandCreateListing, sender.sent[0].cmdType)
	assert.True(t, sender.sent[0].awaitReply)
}

func TestCreateListingFlatReply(t *testing.T) {
	proxy := NewProxy(replyWith(`{"id":"gid-7","variant_id":"v-1"}`), nil)

	out, err := proxy.CreateListing(context.Background(), lamp)
	require.NoError(t, err)
	assert.False(t, out.IsPending())
	assert.Equal(t, "gid-7", out.Value.ListingID)
	assert.Equal(t, "sunset-lamp", out.Value.Handle)
}

func TestCreateListingPlaceholderCarriesNoID(t *testing.T) {
	cases := map[string]*scriptedSender{
		"timeout":   {},
		"null":      replyWith(`null`),
		"malformed": replyWith(`"ok"`),
		"no id":     replyWith(`{"listing":{"status":"draft"}}`),
	}
	for name, sender := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := NewProxy(sender, nil).CreateListing(context.Background(), lamp)
			require.NoError(t, err)
			assert.True(t, out.IsPending())
			assert.Equal(t, domain.SyncStatePending, out.State)
			assert.Empty(t, out.Value.ListingID)
			assert.Empty(t, out.Value.VariantID)
			assert.Equal(t, "sunset-lamp", out.Value.Handle)
		})
	}
}

func TestAgentErrorIsRejected(t *testing.T) {
	sender := &scriptedSender{reply: &bridge.Reply{Error: "invalid handle"}}
	_, err := NewProxy(sender, nil).CreateListing(context.Background(), lamp)
	assert.ErrorIs(t, err, ErrAgentRejected)
	assert.Contains(t, err.Error(), "invalid handle")

	inline := replyWith(`{"error":"shop closed"}`)
	_, err = NewProxy(inline, nil).UpdatePrice(context.Background(), "1", "2", 10, 12)
	assert.ErrorIs(t, err, ErrAgentRejected)
}

func TestFindListingByHandle(t *testing.T) {
	sender := replyWith(`{"listing":{"id":9001,"handle":"sunset-lamp","variants":[{"id":77,"price":"49.95"}]}}`)
	out, err := NewProxy(sender, nil).FindListing(context.Background(), "sunset-lamp")
	require.NoError(t, err)
	got, ok := out.Get()
	require.True(t, ok)
	assert.Equal(t, "9001", got.ListingID)
	assert.Equal(t, "77", got.VariantID)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, domain.CommandGetListing, sender.sent[0].cmdType)
	assert.Equal(t, map[string]string{"handle": "sunset-lamp"}, sender.sent[0].payload)

	missing := &scriptedSender{reply: &bridge.Reply{Error: "no listing with handle sunset-lamp"}}
	out, err = NewProxy(missing, nil).FindListing(context.Background(), "sunset-lamp")
	assert.ErrorIs(t, err, ErrAgentRejected)
	assert.True(t, out.IsPending())

	silent, err := NewProxy(&scriptedSender{}, nil).FindListing(context.Background(), "sunset-lamp")
	require.NoError(t, err)
	assert.True(t, silent.IsPending())
	assert.Equal(t, "sunset-lamp", silent.Value.Handle)
	assert.Empty(t, silent.Value.ListingID)
}

func TestSendErrorIsReturned(t *testing.T) {
	sender := &scriptedSender{err: context.Canceled}
	out, err := NewProxy(sender, nil).GetListing(context.Background(), "42")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, out.IsPending())
}

func TestUpdatePrice(t *testing.T) {
	proxy := NewProxy(replyWith(`{"variant":{"id":55,"price":"24.95","compare_at_price":"32.44"}}`), nil)
	out, err := proxy.UpdatePrice(context.Background(), "listing-1", "55", 24.95, 32.44)
	require.NoError(t, err)
	require.False(t, out.IsPending())
	assert.Equal(t, 24.95, out.Value.PriceAUD)
	assert.Equal(t, 32.44, out.Value.ComparePriceAUD)

	pending, err := NewProxy(&scriptedSender{}, nil).UpdatePrice(context.Background(), "listing-1", "55", 24.95, 32.44)
	require.NoError(t, err)
	assert.True(t, pending.IsPending())
	assert.Equal(t, 24.95, pending.Value.PriceAUD)
}

func TestOtherOperations(t *testing.T) {
	ctx := context.Background()

	upd, err := NewProxy(replyWith(`{"product":{"id":9,"status":"active"}}`), nil).UpdateListing(ctx, "9", ListingUpdate{Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, "active", upd.Value.Status)
	assert.False(t, upd.IsPending())

	del, err := NewProxy(replyWith(`{"deleted":true}`), nil).DeleteListing(ctx, "9")
	require.NoError(t, err)
	assert.True(t, del.Value.Deleted)

	delPending, err := NewProxy(replyWith(`{}`), nil).DeleteListing(ctx, "9")
	require.NoError(t, err)
	assert.True(t, delPending.IsPending())
	assert.False(t, delPending.Value.Deleted)

	ful, err := NewProxy(replyWith(`{"fulfillment":{"id":"f-1","status":"success"}}`), nil).
		CreateFulfillment(ctx, FulfillmentInput{OrderID: "o-1", TrackingNumber: "TN1"})
	require.NoError(t, err)
	assert.Equal(t, "f-1", ful.Value.FulfillmentID)

	fulPending, err := NewProxy(&scriptedSender{}, nil).CreateFulfillment(ctx, FulfillmentInput{OrderID: "o-1"})
	require.NoError(t, err)
	assert.True(t, fulPending.IsPending())
	assert.Empty(t, fulPending.Value.FulfillmentID)

	inv, err := NewProxy(replyWith(`{"inventory_level":{"available":12}}`), nil).SetInventory(ctx, "9", "v", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, inv.Value.Quantity)
	assert.False(t, inv.IsPending())

	count, err := NewProxy(replyWith(`{"count":31}`), nil).ListingCount(ctx)
	require.NoError(t, err)
	n, ok := count.Get()
	assert.True(t, ok)
	assert.Equal(t, 31, n)
}

type silentTransport struct{}

func (silentTransport) Deliver(context.Context, domain.Envelope) error { return nil }
func (silentTransport) Enabled() bool                                 { return true }

func TestCreateListingTimeoutThroughBridge(t *testing.T) {
	b := bridge.New(silentTransport{}, bridge.Options{Timeout: 50 * time.Millisecond})
	proxy := NewProxy(b, nil)

	start := time.Now()
	out, err := proxy.CreateListing(context.Background(), lamp)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, out.IsPending())
	assert.Empty(t, out.Value.ListingID)
	assert.Equal(t, 0, b.Pending())
}

func TestAlertsAreFireAndForget(t *testing.T) {
	sender := &scriptedSender{}
	alerts := NewAlerts(sender)
	run := &domain.Run{RunID: "run_1", Kind: domain.RunKindFull, Status: domain.RunStatusCompleted}

	alerts.Notify(context.Background(), run)
	run.Status = domain.RunStatusFailed
	alerts.Notify(context.Background(), run)
	alerts.LowStock(context.Background(), domain.Product{ProductID: "p"})
	alerts.PriceChange(context.Background(), domain.Product{ProductID: "p"}, 10, 12)

	require.Len(t, sender.sent, 4)
	assert.Equal(t, domain.CommandAlertPipelineComplete, sender.sent[0].cmdType)
	assert.Equal(t, domain.CommandAlertPipelineError, sender.sent[1].cmdType)
	assert.Equal(t, domain.CommandAlertLowStock, sender.sent[2].cmdType)
	assert.Equal(t, domain.CommandAlertPriceChange, sender.sent[3].cmdType)
	for _, c := range sender.sent {
		assert.False(t, c.awaitReply)
	}
}
