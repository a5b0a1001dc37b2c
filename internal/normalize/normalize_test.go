package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
)

var readTime = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func doc(id string, data map[string]interface{}) repository.Document {
	return repository.Document{ID: id, Data: data}
}

func TestProductLegacyShape(t *testing.T) {
	p, diags := Product(doc("s1", map[string]interface{}{
		"title":        "Kanjivaram Silk",
		"image_url":    "https://img/1.jpg",
		"price_type":   "dm",
		"price":        "12500",
		"stock_status": "in_stock",
		"pitch_count":  int64(4),
		"created_at":   "2024-01-02T03:04:05Z",
	}), readTime)

	assert.Empty(t, diags)
	assert.Equal(t, "Kanjivaram Silk", p.Name)
	assert.Equal(t, "https://img/1.jpg", p.ImageURL)
	assert.Equal(t, entity.PriceRequest, p.PriceType)
	assert.Nil(t, p.Price)
	assert.Equal(t, 1, p.StockLevel)
	assert.Equal(t, entity.InStock, p.Availability())
	assert.Equal(t, 4, p.PitchCount)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), p.CreatedAt)
	assert.False(t, p.TimestampInferred)
}

func TestProductCanonicalShape(t *testing.T) {
	p, diags := Product(doc("s2", map[string]interface{}{
		"name":       "Banarasi",
		"priceType":  "fixed",
		"price":      8999.0,
		"stock":      int64(3),
		"pitchCount": int64(1),
		"createdAt":  readTime.Add(-time.Hour),
	}), readTime)

	assert.Empty(t, diags)
	assert.Equal(t, entity.PriceFixed, p.PriceType)
	require.NotNil(t, p.Price)
	assert.Equal(t, 8999.0, *p.Price)
	assert.Equal(t, 3, p.StockLevel)
}

func TestProductPriceTypeInferredFromPrice(t *testing.T) {
	fixed, _ := Product(doc("a", map[string]interface{}{"name": "a", "price": int64(500)}), readTime)
	assert.Equal(t, entity.PriceFixed, fixed.PriceType)

	request, _ := Product(doc("b", map[string]interface{}{"name": "b"}), readTime)
	assert.Equal(t, entity.PriceRequest, request.PriceType)
	assert.Nil(t, request.Price)
}

func TestProductMissingTimestampUsesReadTime(t *testing.T) {
	p, diags := Product(doc("s3", map[string]interface{}{"name": "Chanderi"}), readTime)
	assert.Equal(t, readTime, p.CreatedAt)
	assert.True(t, p.TimestampInferred)
	assert.NotEmpty(t, diags)
}

func TestProductBadCounterDefaultsToZero(t *testing.T) {
	p, diags := Product(doc("s4", map[string]interface{}{
		"name":       "Tussar",
		"pitchCount": "lots",
		"stock":      int64(-2),
		"createdAt":  readTime,
	}), readTime)
	assert.Equal(t, 0, p.PitchCount)
	assert.Equal(t, 0, p.StockLevel)
	assert.Len(t, diags, 2)
}

func TestProductHugeCounterIsClamped(t *testing.T) {
	p, diags := Product(doc("s6", map[string]interface{}{
		"name":       "Bandhani",
		"pitchCount": 1e20,
		"createdAt":  readTime,
	}), readTime)
	assert.Equal(t, math.MaxInt32, p.PitchCount)
	assert.Len(t, diags, 1)
}

func TestUnparseableSpellingFallsBackToNextAlias(t *testing.T) {
	valid := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	p, diags := Product(doc("s7", map[string]interface{}{
		"name":        "Ikat",
		"createdAt":   "garbage",
		"created_at":  valid,
		"pitchCount":  "many",
		"pitch_count": int64(2),
	}), readTime)

	assert.Equal(t, valid, p.CreatedAt)
	assert.False(t, p.TimestampInferred)
	assert.Equal(t, 2, p.PitchCount)
	require.Len(t, diags, 2)
	assert.Equal(t, "createdAt", diags[1].Field)
}

func TestFixedPriceKeepsModeWhenAmountIsBad(t *testing.T) {
	p, diags := Product(doc("s8", map[string]interface{}{
		"name":      "Patola",
		"priceType": "fixed",
		"price":     "abc",
		"createdAt": readTime,
	}), readTime)

	assert.Equal(t, entity.PriceFixed, p.PriceType)
	require.NotNil(t, p.Price)
	assert.Equal(t, 0.0, *p.Price)
	assert.NotEmpty(t, diags)
}

func TestNormalizationIsDeterministic(t *testing.T) {
	raw := map[string]interface{}{"title": "Paithani", "price": 100.0}
	a, _ := Product(doc("s5", raw), readTime)
	b, _ := Product(doc("s5", raw), readTime)
	assert.Equal(t, a, b)
}

func TestPitchAliasesAndStatus(t *testing.T) {
	p, diags := Pitch(doc("p1", map[string]interface{}{
		"saree_id":       "s1",
		"sareeName":      "Kanjivaram Silk",
		"user_id":        "u1",
		"pitch":          "Would you take 10k?",
		"proposed_price": "10000",
		"status":         "new",
		"timestamp":      map[string]interface{}{"seconds": int64(1717234200), "nanoseconds": int64(0)},
	}), readTime)

	assert.Empty(t, diags)
	assert.Equal(t, "s1", p.ProductID)
	assert.Equal(t, "u1", p.AuthorUserID)
	assert.Equal(t, "Would you take 10k?", p.Message)
	require.NotNil(t, p.ProposedPrice)
	assert.Equal(t, 10000.0, *p.ProposedPrice)
	assert.Equal(t, entity.PitchPending, p.Status)
	assert.Equal(t, time.Unix(1717234200, 0).UTC(), p.CreatedAt)
}

func TestPitchUnknownStatusIsPendingWithDiagnostic(t *testing.T) {
	p, diags := Pitch(doc("p2", map[string]interface{}{
		"productId": "s1",
		"status":    "escalated",
		"createdAt": readTime,
	}), readTime)
	assert.Equal(t, entity.PitchPending, p.Status)
	require.Len(t, diags, 1)
	assert.Equal(t, "status", diags[0].Field)
}

func TestMessageLegacyShape(t *testing.T) {
	m, diags := Message(doc("m1", map[string]interface{}{
		"from_user":    "u1",
		"to_user":      "admin",
		"content":      "Is this available?",
		"isRead":       false,
		"product_id":   "s1",
		"product_name": "Kanjivaram Silk",
		"created_at":   float64(1717234200000),
	}), readTime)

	assert.Empty(t, diags)
	assert.Equal(t, "u1", m.SenderID)
	assert.Equal(t, "admin", m.ReceiverID)
	assert.Equal(t, "Is this available?", m.Text)
	assert.Equal(t, "admin_u1", m.ConversationID)
	assert.Equal(t, []string{"admin", "u1"}, m.Participants)
	require.NotNil(t, m.ProductContext)
	assert.Equal(t, "s1", m.ProductContext.ProductID)
	assert.Equal(t, time.UnixMilli(1717234200000).UTC(), m.Timestamp)
}

func TestMessageReceiverFromParticipants(t *testing.T) {
	m, _ := Message(doc("m2", map[string]interface{}{
		"senderId":       "admin",
		"participants":   []interface{}{"admin", "u2"},
		"text":           "Yes",
		"read":           true,
		"productContext": map[string]interface{}{"productId": "s9", "productName": "Bandhani"},
		"timestamp":      readTime,
	}), readTime)

	assert.Equal(t, "u2", m.ReceiverID)
	assert.True(t, m.Read)
	require.NotNil(t, m.ProductContext)
	assert.Equal(t, "Bandhani", m.ProductContext.ProductName)
}

func TestUserDefaults(t *testing.T) {
	u, _ := User(doc("uid1", map[string]interface{}{"email": "a@b.c", "name": "Asha"}), readTime)
	assert.Equal(t, "uid1", u.UID)
	assert.Equal(t, "Asha", u.DisplayName)
	assert.Equal(t, entity.RoleUser, u.Role)

	owner, diags := User(doc("uid2", map[string]interface{}{"role": "Owner", "createdAt": readTime}), readTime)
	assert.Equal(t, entity.RoleOwner, owner.Role)
	assert.Empty(t, diags)

	odd, diags := User(doc("uid3", map[string]interface{}{"role": "root", "createdAt": readTime}), readTime)
	assert.Equal(t, entity.RoleUser, odd.Role)
	assert.Len(t, diags, 1)
}

func TestStoredFieldFollowsExistingSpelling(t *testing.T) {
	assert.Equal(t, "pitch_count", ProductAliases.StoredField(map[string]interface{}{"pitch_count": int64(2)}, "pitchCount"))
	assert.Equal(t, "pitchCount", ProductAliases.StoredField(map[string]interface{}{"title": "x"}, "pitchCount"))
	assert.Equal(t, "stock", ProductAliases.Write("stockLevel"))
	assert.Equal(t, "sareeId", PitchAliases.Write("productId"))
}

func TestAliasPriorityOrder(t *testing.T) {
	p, _ := Product(doc("s6", map[string]interface{}{
		"createdAt":  readTime,
		"created_at": readTime.Add(-time.Hour),
		"name":       "Primary",
		"title":      "Secondary",
	}), readTime)
	assert.Equal(t, readTime, p.CreatedAt)
	assert.Equal(t, "Primary", p.Name)
}
