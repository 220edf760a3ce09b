package log

import (
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Extra writers (a log file,
// a test buffer) receive the same JSON lines as stdout.
func Setup(level string, pretty bool, extra ...io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if len(extra) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, extra...)...)
	}
	zlog.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func write(ev *zerolog.Event, c *fiber.Ctx, action string, fields map[string]any) {
	if c != nil {
		ev = ev.Str("ip", c.IP()).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode())
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ev = ev.Str("req_id", rid)
		}
	}
	if len(fields) > 0 {
		ev = ev.Interface("fields", fields)
	}
	ev.Str("action", action).Send()
}

func Info(c *fiber.Ctx, action string, fields map[string]any) {
	write(zlog.Info(), c, action, fields)
}

func Audit(c *fiber.Ctx, action string, fields map[string]any) {
	write(zlog.Info().Str("kind", "audit"), c, action, fields)
}

func Security(c *fiber.Ctx, action string, fields map[string]any) {
	write(zlog.Warn(), c, action, fields)
}

func Error(c *fiber.Ctx, action string, err error, fields map[string]any) {
	write(zlog.Error().Err(err), c, action, fields)
}
