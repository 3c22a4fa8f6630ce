// Package session 维护浏览器会话到视图状态控制器的映射。
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/projectlens/backend/internal/service/analysis"
	"github.com/projectlens/backend/internal/service/viewstate"
	"k8s.io/klog/v2"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStoreClosed     = errors.New("session store closed")
)

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = time.Minute
	defaultMaxConcurrent = 16
)

// Options 会话存储配置
type Options struct {
	TTL           time.Duration // 空闲多久后回收，0 使用默认值
	SweepInterval time.Duration
	MaxConcurrent int // 全局同时进行的分析数量
	Publisher     viewstate.Publisher
	Clock         func() time.Time
}

type entry struct {
	ctrl       *viewstate.Controller
	lastActive time.Time
}

// Store 内存中的会话表，重启后全部丢失
type Store struct {
	analyzer  analysis.Analyzer
	publisher viewstate.Publisher
	pool      *ants.Pool
	ttl       time.Duration
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore 创建会话存储，所有会话的分析共用一个工作池
func NewStore(analyzer analysis.Analyzer, opts Options) (*Store, error) {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	// 非阻塞：池满时立即返回错误，不占住 HTTP 请求
	pool, err := ants.NewPool(opts.MaxConcurrent,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(5*time.Minute),
		ants.WithPanicHandler(func(p any) {
			klog.Errorf("[session] 分析任务 panic: %v", p)
		}),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}

	return &Store{
		analyzer:  analyzer,
		publisher: opts.Publisher,
		pool:      pool,
		ttl:       opts.TTL,
		interval:  opts.SweepInterval,
		now:       opts.Clock,
		sessions:  make(map[string]*entry),
		stop:      make(chan struct{}),
	}, nil
}

// poolRunner 把工作池关闭映射为 viewstate.ErrRunnerClosed
type poolRunner struct {
	pool *ants.Pool
}

func (r poolRunner) Submit(task func()) error {
	err := r.pool.Submit(task)
	if errors.Is(err, ants.ErrPoolClosed) {
		return viewstate.ErrRunnerClosed
	}
	return err
}

// Start 启动空闲会话回收
func (s *Store) Start() {
	go s.sweepLoop()
}

// Create 新建处于空白编辑模式的会话
func (s *Store) Create() (*viewstate.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	id := uuid.New().String()
	opts := []viewstate.Option{viewstate.WithRunner(poolRunner{pool: s.pool})}
	if s.publisher != nil {
		opts = append(opts, viewstate.WithPublisher(s.publisher))
	}
	ctrl := viewstate.NewController(id, s.analyzer, opts...)
	s.sessions[id] = &entry{ctrl: ctrl, lastActive: s.now()}

	klog.V(6).Infof("[session] 创建会话: id=%s, total=%d", id, len(s.sessions))
	return ctrl, nil
}

// Get 获取会话并刷新活跃时间，关闭后不再返回会话
func (s *Store) Get(id string) (*viewstate.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastActive = s.now()
	return e.ctrl, nil
}

// Delete 删除会话，进行中的分析结果会被丢弃
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.ctrl.Reset()
	klog.V(6).Infof("[session] 删除会话: id=%s", id)
	return nil
}

// Len 当前会话数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Running 工作池中正在执行的分析数
func (s *Store) Running() int {
	return s.pool.Running()
}

// Close 停止回收并等待正在执行的分析结束
func (s *Store) Close(timeout time.Duration) error {
	var err error
	s.stopOnce.Do(func() {
		klog.V(6).Infof("[session] 会话存储关闭中...")
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)

		if running := s.pool.Running(); running > 0 {
			klog.V(6).Infof("[session] 等待 %d 个分析结束 (timeout: %s)", running, timeout)
		}
		if err = s.pool.ReleaseTimeout(timeout); err != nil {
			klog.Warningf("[session] 等待分析结束超时: %v", err)
		}
	})
	return err
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// sweep 回收空闲超时的会话，分析中的会话保留
func (s *Store) sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*entry
	for id, e := range s.sessions {
		if e.lastActive.After(cutoff) {
			continue
		}
		if e.ctrl.Snapshot().IsLoading {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, e)
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	for _, e := range expired {
		e.ctrl.Reset()
	}
	if len(expired) > 0 {
		klog.V(6).Infof("[session] 回收空闲会话: expired=%d, remaining=%d", len(expired), remaining)
	}
	return len(expired)
}
