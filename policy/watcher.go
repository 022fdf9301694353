package policy

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
)

// RuleSink 接收整体替换的规则集，通常为 consensus.Service
type RuleSink interface {
	ReplaceRules(rules []consensus.GuardrailRule)
}

// ReloadEvent 一次重载的结果
type ReloadEvent struct {
	Path      string    `json:"path"`
	Version   string    `json:"version"`
	Rules     int       `json:"rules"`
	Timestamp time.Time `json:"timestamp"`
	Error     error     `json:"-"`
}

// WatcherOption 监听器选项
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger 设置日志
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReloadCallback 每次重载后回调，成功与失败都会触发
func WithReloadCallback(fn func(ReloadEvent)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.callbacks = append(w.callbacks, fn)
		}
	}
}

// Watcher 策略文件监听器
type Watcher struct {
	mu sync.Mutex

	path     string
	sink     RuleSink
	interval time.Duration
	debounce time.Duration

	running  bool
	stopChan chan struct{}
	done     chan struct{}

	callbacks []func(ReloadEvent)
	logger    *zap.Logger

	lastMod  time.Time
	lastSum  [sha256.Size]byte
	current  *Document
	lastErr  error
	reloads  int
	failures int
}

// NewWatcher 创建监听器
func NewWatcher(path string, sink RuleSink, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("policy path is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("rule sink cannot be nil")
	}

	w := &Watcher{
		path:     path,
		sink:     sink,
		interval: 2 * time.Second,
		debounce: 200 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "policy_watcher"), zap.String("path", path))
	return w, nil
}

// Load 立即加载一次并应用。失败时保留当前规则。
func (w *Watcher) Load() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		err = fmt.Errorf("read policy file %s: %w", w.path, err)
		w.record(nil, err)
		return err
	}

	sum := sha256.Sum256(data)
	doc, err := Parse(data, FormatFromPath(w.path))
	if err != nil {
		w.mu.Lock()
		w.lastSum = sum
		w.mu.Unlock()
		w.record(nil, err)
		return err
	}

	rules := doc.ToRules()
	w.sink.ReplaceRules(rules)

	w.mu.Lock()
	w.lastSum = sum
	w.current = doc
	w.mu.Unlock()
	w.record(doc, nil)
	return nil
}

func (w *Watcher) record(doc *Document, err error) {
	evt := ReloadEvent{Path: w.path, Timestamp: time.Now(), Error: err}

	w.mu.Lock()
	w.lastErr = err
	if err != nil {
		w.failures++
	} else {
		w.reloads++
		evt.Version = doc.Version
		evt.Rules = len(doc.ToRules())
	}
	callbacks := make([]func(ReloadEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("policy reload failed, keeping previous rules", zap.Error(err))
	} else {
		w.logger.Info("policy applied",
			zap.String("version", evt.Version),
			zap.Int("rules", evt.Rules))
	}
	for _, cb := range callbacks {
		cb(evt)
	}
}

// Start 启动轮询。调用方通常先调用 Load 完成首次加载。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("policy watcher started",
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop 停止轮询并等待协程退出
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("policy watcher stopped")
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if w.changed() {
				// 连续写入只触发一次重载
				pending = time.After(w.debounce)
			}
		case <-pending:
			pending = nil
			if w.contentChanged() {
				_ = w.Load()
			}
		}
	}
}

// changed 比较修改时间
func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime().Equal(w.lastMod) {
		return false
	}
	w.lastMod = info.ModTime()
	return true
}

// contentChanged 仅修改时间变化而内容不变时跳过重载
func (w *Watcher) contentChanged() bool {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	return sum != w.lastSum
}

// Current 当前生效的文档，从未成功加载时为 nil
func (w *Watcher) Current() *Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// WatcherStats 监听器统计
type WatcherStats struct {
	Reloads   int    `json:"reloads"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
	Running   bool   `json:"running"`
}

// Stats 返回统计
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := WatcherStats{Reloads: w.reloads, Failures: w.failures, Running: w.running}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}
