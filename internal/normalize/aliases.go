package normalize

// Alias lists every stored spelling of one canonical field, in priority
// order. The first name is the spelling used for new writes.
type Alias struct {
	Field string
	Names []string
}

type Table []Alias

func (t Table) names(canonical string) []string {
	for _, a := range t {
		if a.Field == canonical {
			return a.Names
		}
	}
	return []string{canonical}
}

// Lookup returns the first present, non-nil value for canonical and the
// stored name it was found under.
func (t Table) Lookup(data map[string]interface{}, canonical string) (interface{}, string, bool) {
	for _, name := range t.names(canonical) {
		if v, ok := data[name]; ok && v != nil {
			return v, name, true
		}
	}
	return nil, "", false
}

// Names returns every stored spelling of canonical in priority order.
func (t Table) Names(canonical string) []string {
	return append([]string(nil), t.names(canonical)...)
}

// Write returns the canonical stored spelling of a field.
func (t Table) Write(canonical string) string {
	return t.names(canonical)[0]
}

// StoredField returns the spelling a stored document actually uses for
// canonical, falling back to the write spelling. Counter increments use it
// so they land on the field that readers already see.
func (t Table) StoredField(data map[string]interface{}, canonical string) string {
	if _, name, ok := t.Lookup(data, canonical); ok {
		return name
	}
	return t.Write(canonical)
}

var ProductAliases = Table{
	{Field: "name", Names: []string{"name", "title"}},
	{Field: "description", Names: []string{"description", "desc"}},
	{Field: "imageUrl", Names: []string{"imageUrl", "image_url", "image"}},
	{Field: "category", Names: []string{"category"}},
	{Field: "priceType", Names: []string{"priceType", "price_type"}},
	{Field: "price", Names: []string{"price"}},
	{Field: "stockLevel", Names: []string{"stock", "stockLevel", "stock_level"}},
	{Field: "stockStatus", Names: []string{"stock_status", "stockStatus"}},
	{Field: "pitchCount", Names: []string{"pitchCount", "pitch_count"}},
	{Field: "createdAt", Names: []string{"createdAt", "created_at", "timestamp"}},
	{Field: "updatedAt", Names: []string{"updatedAt", "updated_at"}},
}

var PitchAliases = Table{
	{Field: "productId", Names: []string{"sareeId", "productId", "saree_id", "product_id"}},
	{Field: "productName", Names: []string{"sareeName", "productName", "saree_name", "product_name"}},
	{Field: "authorUserId", Names: []string{"userId", "authorUserId", "user_id"}},
	{Field: "name", Names: []string{"name", "userName"}},
	{Field: "email", Names: []string{"email", "userEmail"}},
	{Field: "phone", Names: []string{"phone", "phoneNumber"}},
	{Field: "message", Names: []string{"message", "pitch", "content"}},
	{Field: "proposedPrice", Names: []string{"proposedPrice", "proposed_price", "offerPrice"}},
	{Field: "status", Names: []string{"status"}},
	{Field: "createdAt", Names: []string{"createdAt", "created_at", "timestamp"}},
	{Field: "updatedAt", Names: []string{"updatedAt", "updated_at"}},
}

var MessageAliases = Table{
	{Field: "senderId", Names: []string{"senderId", "from_user", "fromUser", "userId"}},
	{Field: "receiverId", Names: []string{"receiverId", "to_user", "toUser", "recipientId"}},
	{Field: "participants", Names: []string{"participants"}},
	{Field: "text", Names: []string{"text", "content", "message"}},
	{Field: "imageUrl", Names: []string{"imageUrl", "image_url"}},
	{Field: "timestamp", Names: []string{"timestamp", "createdAt", "created_at"}},
	{Field: "read", Names: []string{"read", "isRead"}},
	{Field: "productContext", Names: []string{"productContext"}},
	{Field: "productId", Names: []string{"productId", "product_id", "referencePostId"}},
	{Field: "productName", Names: []string{"productName", "product_name", "referencePostTitle"}},
}

var UserAliases = Table{
	{Field: "email", Names: []string{"email"}},
	{Field: "displayName", Names: []string{"displayName", "name", "display_name"}},
	{Field: "role", Names: []string{"role"}},
	{Field: "disabled", Names: []string{"disabled", "isDisabled"}},
	{Field: "createdAt", Names: []string{"createdAt", "created_at"}},
	{Field: "lastLoginAt", Names: []string{"lastLoginAt", "last_login_at", "lastLogin"}},
}
