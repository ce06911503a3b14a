// Package database 负责创建各持久化后端的连接。
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pai-chat-client/pkg/log"

	bolt "go.etcd.io/bbolt"
)

// OpenBolt 打开（必要时创建）本地 BoltDB 文件。
// 同一文件只能被一个进程持有，等待锁超过 2 秒即返回错误。
func OpenBolt(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}
	log.Infof("BoltDB opened: %s", path)
	return db, nil
}
