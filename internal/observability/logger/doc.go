// Package logger provee el logger Zap del proceso con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una sola instancia inicializada con Init() desde cmd/keyrelay.
//   - Context Scoping: cada request (o cada rotación) lleva un logger "scoped" con
//     campos extra (request_id, issuer, kid, namespace) sin crear un core nuevo.
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON, "test" descarta todo.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("jwt.issuer_cache"))
//	log.Warn("jwks refresh failed, serving stale", logger.Issuer(iss), logger.Err(err))
package logger
