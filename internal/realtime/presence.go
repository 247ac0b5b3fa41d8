package realtime

import "sort"

// OnlineUsers returns the latest presence snapshot, sorted.
func (s *Service) OnlineUsers() []string {
	var ids []string
	s.disp.do(func() { ids = s.onlineList() })
	return ids
}

// IsOnline looks userID up in the latest presence snapshot.
func (s *Service) IsOnline(userID string) bool {
	var ok bool
	s.disp.do(func() { _, ok = s.online[userID] })
	return ok
}

// OnPresenceChange subscribes to presence snapshots.
func (s *Service) OnPresenceChange(fn func(online []string)) func() {
	return s.presenceSubs.subscribe(fn)
}

func (s *Service) onlineList() []string {
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// replacePresence swaps in a full snapshot; nothing is merged with the previous one.
func (s *Service) replacePresence(ids []string) {
	online := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			online[id] = struct{}{}
		}
	}
	s.online = online
	s.presenceSubs.emit(s.onlineList())
	s.refreshOnlineFlags()
}

func (s *Service) clearPresence() {
	if len(s.online) == 0 {
		return
	}
	s.online = make(map[string]struct{})
	s.presenceSubs.emit(nil)
	s.refreshOnlineFlags()
}
