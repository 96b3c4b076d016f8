package redis

import "fmt"

// tableKey is the HASH of id -> JSON row for a table.
func (s *Storage) tableKey(table string) string {
	return fmt.Sprintf("%s:table:%s", s.cfg.KeyPrefix, table)
}

// uniqueIndexKey is the HASH of lowercased column value -> id.
func (s *Storage) uniqueIndexKey(table, column string) string {
	return fmt.Sprintf("%s:idx:%s:%s", s.cfg.KeyPrefix, table, column)
}

// changesChannel is the pub/sub channel that carries change notifications.
func (s *Storage) changesChannel(table string) string {
	return fmt.Sprintf("%s:changes:%s", s.cfg.KeyPrefix, table)
}
