package client

import (
	"bufio"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FingerprintManager hands out User-Agent and Accept-Language values.
type FingerprintManager struct {
	userAgents []string
	languages  []string
	mu         sync.Mutex
	random     *rand.Rand
}

// NewFingerprintManager creates a manager with a single default User-Agent.
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		userAgents: []string{defaultUserAgent},
		languages:  []string{"en-US,en;q=0.9", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7", "kk-KZ,kk;q=0.9,ru;q=0.8"},
		random:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadUserAgents replaces the User-Agent list with the non-empty lines of path
// and returns how many were loaded. An empty file keeps the current list.
func (fm *FingerprintManager) LoadUserAgents(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var loaded []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			loaded = append(loaded, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	if len(loaded) > 0 {
		fm.mu.Lock()
		fm.userAgents = loaded
		fm.mu.Unlock()
	}
	return len(loaded), nil
}

// UserAgent returns a random User-Agent.
func (fm *FingerprintManager) UserAgent() string {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.userAgents[fm.random.Intn(len(fm.userAgents))]
}

// Headers returns browser-like headers for an API request.
func (fm *FingerprintManager) Headers() map[string]string {
	fm.mu.Lock()
	lang := fm.languages[fm.random.Intn(len(fm.languages))]
	fm.mu.Unlock()

	return map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": lang,
		"Connection":      "keep-alive",
	}
}
