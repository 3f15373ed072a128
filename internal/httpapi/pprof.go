package httpapi

import (
	"net/http/pprof"

	"github.com/gin-gonic/gin"
)

// mountPprof serves the runtime profiles under /debug/pprof behind the same
// auth as /v1.
func mountPprof(r *gin.Engine, auth gin.HandlerFunc) {
	g := r.Group("/debug/pprof", auth)
	g.GET("/", gin.WrapF(pprof.Index))
	g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	g.GET("/profile", gin.WrapF(pprof.Profile))
	g.GET("/symbol", gin.WrapF(pprof.Symbol))
	g.POST("/symbol", gin.WrapF(pprof.Symbol))
	g.GET("/trace", gin.WrapF(pprof.Trace))
	// Named profiles (heap, goroutine, allocs, block, mutex, threadcreate).
	g.GET("/:name", func(c *gin.Context) {
		pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
	})
}
