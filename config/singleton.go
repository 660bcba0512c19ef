package config

import "sync"

var (
	_instance ConfigManager
	_once     sync.Once
	_mu       sync.RWMutex
)

// GetInstance returns the process-wide configuration manager, creating it
// on first use.
func GetInstance() ConfigManager {
	_once.Do(func() {
		_mu.Lock()
		defer _mu.Unlock()
		if _instance == nil {
			_instance = NewConfigManager()
		}
	})
	_mu.RLock()
	defer _mu.RUnlock()
	return _instance
}

// SetInstance replaces the process-wide configuration manager. Intended for
// tests and for binaries that build a customized manager during bootstrap.
func SetInstance(cm ConfigManager) {
	_mu.Lock()
	defer _mu.Unlock()
	_instance = cm
}
