package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/trame/internal/logging"
)

// Listen 按配置的 Host/Port/Protocol 启动服务，ctx 取消后在 ShutdownTimeout 内优雅关闭。
// 仅在 Configure 成功后可调用。
func (s *Server) Listen(ctx context.Context) error {
	if s.State() != StateReady {
		return ErrNotReady
	}
	g := s.cfg.Global

	ln, err := net.Listen("tcp", g.Address())
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", g.Address(), err)
	}
	if g.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(g.CertFile, g.KeyFile)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("加载 TLS 证书失败: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		})
	}

	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	fields := logging.BaseFields("listen", s.configPath)
	fields["addr"] = ln.Addr().String()
	fields["protocol"] = g.Protocol
	s.logger.WithFields(fields).Info("Fiber 服务启动")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-gctx.Done()
		err := s.app.ShutdownWithTimeout(g.ShutdownTimeout.DurationValue())
		// Listener 尚未进入 Serve 时 Shutdown 无法感知，直接关闭监听使其返回。
		_ = ln.Close()
		if ctx.Err() == nil {
			return nil
		}
		return err
	})

	err = group.Wait()
	if closeErr := s.Close(); closeErr != nil {
		s.logger.WithFields(logging.BaseFields("shutdown", s.configPath)).Warnf("释放资源失败: %v", closeErr)
	}
	s.logger.WithFields(logging.BaseFields("shutdown", s.configPath)).Info("Fiber 服务已停止")
	return err
}
