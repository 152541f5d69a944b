// Package engine defines the storage engine capability contract and selects
// a concrete backend at open time.
//
// Two backends satisfy the Engine interface: the log-structured store from
// internal/storage and a LevelDB-backed alternative whose on-disk format is
// opaque to this system. Callers depend only on the interface; the backend
// is a configuration choice, never a code branch at call sites.
package engine
