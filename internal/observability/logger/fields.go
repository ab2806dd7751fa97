package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - CLAVES
// =================================================================================

// Namespace es el prefijo de entorno bajo el que viven las claves en el store.
func Namespace(v string) zap.Field { return zap.String("namespace", v) }

// Slot identifica el slot de rotación (primary|secondary).
func Slot(v string) zap.Field { return zap.String("slot", v) }

// KID identifica una clave publicada. Nunca loguear material privado.
func KID(v string) zap.Field { return zap.String("kid", v) }

// Issuer es el "iss" de un token o el emisor de un JWKS remoto.
func Issuer(v string) zap.Field { return zap.String("issuer", v) }

// Endpoint es la URL de JWKS de un issuer.
func Endpoint(v string) zap.Field { return zap.String("endpoint", v) }

// RunID identifica una ejecución de rotación.
func RunID(v string) zap.Field { return zap.String("run_id", v) }

// Reason es el motivo interno de un rechazo (solo para diagnóstico).
func Reason(v string) zap.Field { return zap.String("reason", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func Count(v int) zap.Field { return zap.Int("count", v) }

func Age(v time.Duration) zap.Field { return zap.Duration("age", v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
