package audit

// tamper 测试辅助：原地改写一条记录
func (s *MemoryStore) tamper(seq uint64, fn func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Sequence == seq {
			fn(&s.entries[i])
			return
		}
	}
}
