package observability

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
}

// InitLogger ajusta nível e formato do logger do processo.
// Nível inválido cai para info; formato diferente de "text" usa JSON.
func InitLogger(level, format string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logger.SetFormatter(&logrus.JSONFormatter{})
}

func GetLogger() *logrus.Logger {
	return logger
}

// WithComponent devolve um logger com o campo "component" preenchido.
func WithComponent(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// MaskID mantém só os 4 primeiros caracteres de um identificador para uso em logs.
func MaskID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[:4] + "***"
}
