package closer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// allClosed - индекс, который возвращается, когда все ресурсы закрыты в штатном режиме
const allClosed = -1

// Func — сигнатура функции закрытия ресурса.
type Func func(ctx context.Context) error

type resource struct {
	name  string
	close Func
}

// Closer обеспечивает потокобезопасное закрытие ресурсов приложения
// (HTTP-сервер, gRPC-соединение с ML-сервисом, клиенты хранилищ).
type Closer struct {
	resources     []resource
	mu            sync.Mutex
	once          sync.Once
	forcedTimeout time.Duration
}

// NewCloser создает новый экземпляр Closer.
// forcedTimeout — время на принудительное закрытие ресурсов, которые не успели закрыться до отмены контекста.
func NewCloser(forcedTimeout time.Duration) *Closer {
	const defaultForcedTimeout = 2 * time.Second

	if forcedTimeout <= 0 {
		forcedTimeout = defaultForcedTimeout
	}

	return &Closer{forcedTimeout: forcedTimeout}
}

// Add регистрирует именованную функцию закрытия.
func (c *Closer) Add(name string, f Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = append(c.resources, resource{name: name, close: f})
}

// AddSimple регистрирует функцию закрытия без контекста, например client.Close.
func (c *Closer) AddSimple(name string, f func() error) {
	c.Add(name, func(context.Context) error { return f() })
}

// Close закрывает ресурсы в порядке LIFO. Повторные вызовы ничего не делают.
// Если ctx отменён раньше, чем всё закрылось, оставшиеся ресурсы закрываются параллельно с forcedTimeout.
func (c *Closer) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		resources := c.resources
		c.mu.Unlock()

		stopIdx, msgs := c.closeInOrder(ctx, resources)
		if stopIdx == allClosed {
			if len(msgs) > 0 {
				err = fmt.Errorf("shutdown finished with error(s):\n%s", strings.Join(msgs, "\n"))
			}
			return
		}

		msgs = append(msgs, c.closeForced(resources[:stopIdx+1])...)
		err = fmt.Errorf(
			"shutdown interrupted after %d/%d resources:\n%s",
			len(resources)-1-stopIdx,
			len(resources),
			strings.Join(msgs, "\n"),
		)
	})

	return err
}

func (c *Closer) closeInOrder(ctx context.Context, resources []resource) (int, []string) {
	var msgs []string
	for i := len(resources) - 1; i >= 0; i-- {
		res := resources[i]
		done := make(chan error, 1)

		go func() {
			done <- res.close(ctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("[!] %s: %v", res.name, err))
			}
		case <-ctx.Done():
			return i, msgs
		}
	}

	return allClosed, msgs
}

func (c *Closer) closeForced(resources []resource) []string {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		msgs []string
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.forcedTimeout)
	defer cancel()

	for _, res := range resources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := res.close(ctx); err != nil {
				mu.Lock()
				msgs = append(msgs, fmt.Sprintf("[FORCED] %s: %v", res.name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return msgs
}
