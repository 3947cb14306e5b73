package capture

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/teslashibe/go-facegate/pkg/recognition"
)

// Message keys. The English text doubles as the key.
const (
	msgUnsupported      = "Camera access is not supported in this environment."
	msgPermissionDenied = "Camera permission denied. Allow camera access and try again."
	msgDeviceNotFound   = "No camera found. Connect a camera and try again."
	msgDeviceError      = "Could not access the camera: %s"
	msgNotReady         = "Camera not ready. Wait a moment and try again."
	msgBusy             = "Already processing. Please wait."
	msgTransport        = "Server error (HTTP %d)."
	msgInvalidResponse  = "The server sent an unreadable response."
	msgConnectivity     = "Connection error. Check your network and try again."
	msgRejected         = "Face not recognized."
	msgAlreadyActive    = "The camera is already active."
	msgStale            = "Response discarded: the camera session has ended."
	msgLowQuality       = "Image quality too low (%s). Adjust the lighting and try again."
	msgUnexpected       = "Unexpected error: %s"

	msgStarting = "Starting camera..."
	msgStarted  = "Camera started."
	msgProcess  = "Processing..."
	msgEnrolled = "Face enrolled successfully."
	msgVerified = "Face recognized."
	msgAccepted = "Done."
)

var ptBR = map[string]string{
	msgUnsupported:      "Seu dispositivo não suporta acesso à câmera.",
	msgPermissionDenied: "Permissão da câmera negada. Permita o acesso à câmera e tente novamente.",
	msgDeviceNotFound:   "Nenhuma câmera encontrada. Conecte uma câmera e tente novamente.",
	msgDeviceError:      "Erro ao acessar a câmera: %s",
	msgNotReady:         "A câmera não está pronta. Aguarde um momento e tente novamente.",
	msgBusy:             "Já existe um processamento em andamento. Aguarde.",
	msgTransport:        "Erro no servidor (HTTP %d).",
	msgInvalidResponse:  "O servidor enviou uma resposta inválida.",
	msgConnectivity:     "Erro de conexão. Verifique sua rede e tente novamente.",
	msgRejected:         "Rosto não reconhecido.",
	msgAlreadyActive:    "A câmera já está ativa.",
	msgStale:            "Resposta descartada: a sessão da câmera foi encerrada.",
	msgLowQuality:       "Qualidade da imagem insuficiente (%s). Ajuste a iluminação e tente novamente.",
	msgUnexpected:       "Erro inesperado: %s",

	msgStarting: "Iniciando câmera...",
	msgStarted:  "Câmera iniciada.",
	msgProcess:  "Processando...",
	msgEnrolled: "Rosto cadastrado com sucesso.",
	msgVerified: "Rosto reconhecido.",
	msgAccepted: "Concluído.",
}

var kindMessages = map[Kind]string{
	UnsupportedEnvironment: msgUnsupported,
	PermissionDenied:       msgPermissionDenied,
	DeviceNotFound:         msgDeviceNotFound,
	DeviceError:            msgDeviceError,
	CaptureNotReady:        msgNotReady,
	Busy:                   msgBusy,
	TransportError:         msgTransport,
	ConnectivityError:      msgConnectivity,
	ServerRejected:         msgRejected,
	AlreadyActive:          msgAlreadyActive,
	Stale:                  msgStale,
	LowQuality:             msgLowQuality,
	Unexpected:             msgUnexpected,
}

var (
	supported = []language.Tag{language.BrazilianPortuguese, language.English}
	matcher   = language.NewMatcher(supported)
	messages  = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.BrazilianPortuguese))
	for key, pt := range ptBR {
		// Keys are constants; SetString only fails on malformed tags.
		_ = b.SetString(language.BrazilianPortuguese, key, pt)
		_ = b.SetString(language.English, key, key)
	}
	return b
}

// Messages renders user-facing text in one language.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

// NewMessages returns messages for the closest supported language to lang
// (a BCP 47 tag such as "pt-BR" or "en"). Unknown tags fall back to
// Brazilian Portuguese.
func NewMessages(lang string) *Messages {
	tag := language.BrazilianPortuguese
	if t, err := language.Parse(lang); err == nil {
		_, idx, conf := matcher.Match(t)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Messages{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(messages)),
	}
}

// Language returns the selected language tag.
func (m *Messages) Language() string {
	return m.tag.String()
}

// Text renders a message key.
func (m *Messages) Text(key string, args ...interface{}) string {
	return m.printer.Sprintf(key, args...)
}

// For returns the message for a controller error.
func (m *Messages) For(e *Error) string {
	key, ok := kindMessages[e.Kind]
	if !ok {
		return m.Text(msgUnexpected, e.Kind.String())
	}

	switch e.Kind {
	case DeviceError, Unexpected, LowQuality:
		detail := e.Kind.String()
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return m.Text(key, detail)
	case TransportError:
		if errors.Is(e.Err, recognition.ErrInvalidResponse) {
			return m.Text(msgInvalidResponse)
		}
		return m.Text(key, e.StatusCode)
	default:
		return m.Text(key)
	}
}
