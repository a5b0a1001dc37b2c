// Package aggregate derives secondary read models from the normalized
// base collections. All functions are pure and accept empty inputs.
package aggregate

import (
	"sort"

	"zarigaas/internal/domain/entity"
)

// newer reports whether a should replace b as the latest message. Equal
// timestamps are broken by the higher id.
func newer(a, b entity.Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// Conversations groups the messages involving viewerID by peer. Messages
// the viewer is not part of are ignored.
func Conversations(viewerID string, messages []entity.Message) []entity.Conversation {
	byPeer := make(map[string]*entity.Conversation)
	for _, m := range messages {
		if !m.Involves(viewerID) {
			continue
		}
		peer := m.Peer(viewerID)
		if peer == "" || peer == viewerID {
			continue
		}
		conv, ok := byPeer[peer]
		if !ok {
			conv = &entity.Conversation{
				ConversationID: entity.ConversationID(viewerID, peer),
				PeerID:         peer,
				LastMessage:    m,
			}
			byPeer[peer] = conv
		} else if newer(m, conv.LastMessage) {
			conv.LastMessage = m
		}
		conv.MessageCount++
		if m.ReceiverID == viewerID && !m.Read {
			conv.UnreadCount++
		}
	}

	out := make([]entity.Conversation, 0, len(byPeer))
	for _, conv := range byPeer {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		if newer(out[i].LastMessage, out[j].LastMessage) {
			return true
		}
		if newer(out[j].LastMessage, out[i].LastMessage) {
			return false
		}
		return out[i].PeerID < out[j].PeerID
	})
	return out
}

// Thread returns the messages between viewerID and peerID, oldest first.
func Thread(viewerID, peerID string, messages []entity.Message) []entity.Message {
	id := entity.ConversationID(viewerID, peerID)
	out := []entity.Message{}
	for _, m := range messages {
		if m.ConversationID == id {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[j], out[i])
	})
	return out
}

// UnreadFor counts unread messages addressed to viewerID.
func UnreadFor(viewerID string, messages []entity.Message) int {
	n := 0
	for _, m := range messages {
		if m.ReceiverID == viewerID && !m.Read {
			n++
		}
	}
	return n
}
