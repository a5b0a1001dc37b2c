package realtime

import (
	"zarigaas/internal/domain/entity"
	"zarigaas/internal/normalize"
)

var ProductCodec = Codec[entity.Product]{
	Entity: "product",
	Decode: normalize.Product,
	ID:     func(p entity.Product) string { return p.ID },
	Field: func(p entity.Product, field string) interface{} {
		switch field {
		case "name":
			return p.Name
		case "createdAt":
			return p.CreatedAt
		case "updatedAt":
			return p.UpdatedAt
		case "pitchCount":
			return p.PitchCount
		case "stockLevel":
			return p.StockLevel
		case "price":
			if p.Price == nil {
				return nil
			}
			return *p.Price
		case "category":
			return p.Category
		}
		return p.ID
	},
	Inferred: func(p entity.Product) bool { return p.TimestampInferred },
	Carry: func(next, prev entity.Product) entity.Product {
		next.CreatedAt = prev.CreatedAt
		return next
	},
	Clone: entity.Product.Clone,
}

var PitchCodec = Codec[entity.Pitch]{
	Entity: "pitch",
	Decode: normalize.Pitch,
	ID:     func(p entity.Pitch) string { return p.ID },
	Field: func(p entity.Pitch, field string) interface{} {
		switch field {
		case "createdAt":
			return p.CreatedAt
		case "updatedAt":
			return p.UpdatedAt
		case "status":
			return string(p.Status)
		case "productId":
			return p.ProductID
		}
		return p.ID
	},
	Inferred: func(p entity.Pitch) bool { return p.TimestampInferred },
	Carry: func(next, prev entity.Pitch) entity.Pitch {
		next.CreatedAt = prev.CreatedAt
		return next
	},
	Clone: entity.Pitch.Clone,
}

var MessageCodec = Codec[entity.Message]{
	Entity: "message",
	Decode: normalize.Message,
	ID:     func(m entity.Message) string { return m.ID },
	Field: func(m entity.Message, field string) interface{} {
		switch field {
		case "timestamp":
			return m.Timestamp
		case "conversationId":
			return m.ConversationID
		case "senderId":
			return m.SenderID
		}
		return m.ID
	},
	Inferred: func(m entity.Message) bool { return m.TimestampInferred },
	Carry: func(next, prev entity.Message) entity.Message {
		next.Timestamp = prev.Timestamp
		return next
	},
	Clone: entity.Message.Clone,
}

var UserCodec = Codec[entity.User]{
	Entity: "user",
	Decode: normalize.User,
	ID:     func(u entity.User) string { return u.UID },
	Field: func(u entity.User, field string) interface{} {
		switch field {
		case "createdAt":
			return u.CreatedAt
		case "lastLoginAt":
			return u.LastLoginAt
		case "email":
			return u.Email
		case "role":
			return string(u.Role)
		}
		return u.UID
	},
	Inferred: func(u entity.User) bool { return u.TimestampInferred },
	Carry: func(next, prev entity.User) entity.User {
		next.CreatedAt = prev.CreatedAt
		return next
	},
}
