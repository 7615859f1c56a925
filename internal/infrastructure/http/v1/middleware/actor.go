package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "sompos/internal/core/context"
)

// HeaderActorID carries the caller resolved by the upstream gateway.
const HeaderActorID = "X-Actor-ID"

// Actor stores the caller and the store path parameter in the request context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader(HeaderActorID)
		storeID := c.Param("store_id")
		if actorID != "" || storeID != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.ActorContext{
				ActorID: actorID,
				StoreID: storeID,
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
