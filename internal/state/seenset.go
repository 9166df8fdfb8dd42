package state

import "encoding/json"

// SeenSet 是按插入顺序保存的去重集合。
// 淘汰按插入顺序（最早的先出），不是 LRU：命中不会刷新位置。
type SeenSet struct {
	order []string
	index map[string]struct{}
}

func NewSeenSet(values ...string) *SeenSet {
	s := &SeenSet{index: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add 追加一个值；空串与已存在的值忽略
func (s *SeenSet) Add(v string) bool {
	if v == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

func (s *SeenSet) Has(v string) bool {
	if s == nil || v == "" {
		return false
	}
	_, ok := s.index[v]
	return ok
}

func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Trim 只保留最近加入的 max 个值
func (s *SeenSet) Trim(max int) {
	if max < 0 || len(s.order) <= max {
		return
	}
	drop := len(s.order) - max
	for _, v := range s.order[:drop] {
		delete(s.index, v)
	}
	kept := make([]string, max)
	copy(kept, s.order[drop:])
	s.order = kept
}

// Values 返回按插入顺序排列的副本
func (s *SeenSet) Values() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

func (s *SeenSet) MarshalJSON() ([]byte, error) {
	if s == nil || s.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.order)
}

func (s *SeenSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = SeenSet{index: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return nil
}
