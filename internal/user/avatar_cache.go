package user

import "sync"

// AvatarCache はユーザーIDごとのアバターURLを保持する。
// ログアウト時にauth.ServiceからClearCacheが呼ばれる。
type AvatarCache struct {
	mu   sync.RWMutex
	urls map[string]string
}

// NewAvatarCache はAvatarCacheを生成する。
func NewAvatarCache() *AvatarCache {
	return &AvatarCache{urls: make(map[string]string)}
}

// Get はキャッシュ済みのURLを返す。
func (c *AvatarCache) Get(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.urls[userID]
	return u, ok
}

// Set はURLを保存する。空のURLは削除として扱う。
func (c *AvatarCache) Set(userID, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if url == "" {
		delete(c.urls, userID)
		return
	}
	c.urls[userID] = url
}

// ClearCache はすべてのエントリを破棄する。
func (c *AvatarCache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.urls)
}
