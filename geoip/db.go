package geoip

import (
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"github.com/vpnhouse/reqinspect/xerror"
)

type db struct {
	lock   sync.RWMutex
	reader *maxminddb.Reader
}

func newDb(reader *maxminddb.Reader) *db {
	return &db{reader: reader}
}

// Lookup decodes the record for ip into result and reports whether ip
// belongs to any network in the database.
func (s *db) Lookup(ip net.IP, result interface{}) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.reader == nil {
		return false, xerror.EInternalError("maxmind database instance is closed", nil)
	}
	_, ok, err := s.reader.LookupNetwork(ip, result)
	return ok, err
}

func (s *db) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.reader == nil {
		return nil
	}

	err := s.reader.Close()
	s.reader = nil
	return err
}
