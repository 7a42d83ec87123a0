package router

import (
	"github.com/gin-gonic/gin"

	"github.com/openground/backend/internal/interfaces/http/handler"
)

// Handlers are the API handlers mounted under the versioned prefix
type Handlers struct {
	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Listings  *handler.ListingHandler
	Favorites *handler.FavoriteHandler
	Threads   *handler.ThreadHandler
	Stream    *handler.StreamHandler
	Reviews   *handler.ReviewHandler
	Reports   *handler.ReportHandler
}

// Guards are the access-control middleware applied per route.
type Guards struct {
	// Authenticated rejects requests without a valid access token.
	Authenticated gin.HandlerFunc
	// Optional resolves the caller when a token is present.
	Optional gin.HandlerFunc
	// Stream authenticates EventSource clients, which cannot set headers.
	Stream gin.HandlerFunc
	// Admin runs after Authenticated and rejects non-admins.
	Admin gin.HandlerFunc
	// Credentials throttles register, login and refresh. May be nil.
	Credentials gin.HandlerFunc
}

// MarketplaceGroups builds the route groups of the marketplace API
func MarketplaceGroups(h Handlers, g Guards) []RouteRegistrar {
	auth := NewDomainGroup("auth", "/auth")
	auth.POST("/register", g.Credentials, h.Auth.Register)
	auth.POST("/login", g.Credentials, h.Auth.Login)
	auth.POST("/refresh", g.Credentials, h.Auth.Refresh)
	auth.POST("/logout", g.Authenticated, h.Auth.Logout)
	auth.GET("/me", g.Authenticated, h.Auth.Me)

	profile := NewDomainGroup("profile", "/profile").Use(g.Authenticated)
	profile.GET("", h.Auth.Me)
	profile.PUT("", h.Users.UpdateProfile)
	profile.PUT("/password", h.Auth.ChangePassword)

	users := NewDomainGroup("users", "/users").Use(g.Optional)
	users.GET("", h.Users.BatchProfiles)
	users.GET("/:id", h.Users.GetProfile)
	users.GET("/:id/listings", h.Listings.ListBySeller)
	users.GET("/:id/reviews", h.Reviews.ListForUser)

	catalog := NewDomainGroup("catalog", "")
	catalog.GET("/categories", h.Listings.Categories)

	listings := NewDomainGroup("listings", "/listings")
	listings.GET("", g.Optional, h.Listings.Search)
	listings.GET("/:id", g.Optional, h.Listings.Get)
	listings.POST("", g.Authenticated, h.Listings.Create)
	listings.PUT("/:id", g.Authenticated, h.Listings.Update)
	listings.DELETE("/:id", g.Authenticated, h.Listings.Delete)
	listings.POST("/:id/sold", g.Authenticated, h.Listings.MarkSold)
	listings.POST("/:id/archive", g.Authenticated, h.Listings.Archive)
	listings.POST("/:id/reactivate", g.Authenticated, h.Listings.Reactivate)
	photos := listings.Group("photos", "/:id/photos").Use(g.Authenticated)
	photos.POST("/upload-url", h.Listings.RequestUploadURL)
	photos.POST("", h.Listings.AttachPhoto)
	photos.DELETE("/:photo_id", h.Listings.RemovePhoto)

	favorites := NewDomainGroup("favorites", "/favorites").Use(g.Authenticated)
	favorites.GET("", h.Favorites.List)
	favorites.GET("/ids", h.Favorites.IDs)
	favorites.PUT("/:listing_id", h.Favorites.Add)
	favorites.DELETE("/:listing_id", h.Favorites.Remove)

	threads := NewDomainGroup("threads", "/threads").Use(g.Authenticated)
	threads.GET("", h.Threads.List)
	threads.POST("", h.Threads.Start)
	threads.GET("/unread", h.Threads.Unread)
	threads.GET("/:id", h.Threads.Get)
	threads.GET("/:id/messages", h.Threads.Messages)
	threads.POST("/:id/messages", h.Threads.Send)
	threads.POST("/:id/read", h.Threads.MarkRead)
	threads.GET("/:id/typing", h.Threads.Typing)
	threads.POST("/:id/typing", h.Threads.SetTyping)

	stream := NewDomainGroup("stream", "/threads").Use(g.Stream)
	stream.GET("/:id/stream", h.Stream.Stream)

	reviews := NewDomainGroup("reviews", "/reviews").Use(g.Authenticated)
	reviews.POST("", h.Reviews.Create)
	reviews.PUT("/:id", h.Reviews.Update)
	reviews.DELETE("/:id", h.Reviews.Delete)

	reports := NewDomainGroup("reports", "/reports").Use(g.Authenticated)
	reports.POST("", h.Reports.Create)
	reports.GET("/mine", h.Reports.ListMine)

	admin := NewDomainGroup("admin", "/admin").Use(g.Authenticated, g.Admin)
	admin.GET("/listings/pending", h.Listings.ListPending)
	admin.POST("/listings/:id/approve", h.Listings.Approve)
	admin.POST("/listings/:id/reject", h.Listings.Reject)
	admin.POST("/users/:id/ban", h.Users.Ban)
	admin.POST("/users/:id/unban", h.Users.Unban)
	admin.GET("/reports", h.Reports.List)
	admin.POST("/reports/:id/resolve", h.Reports.Resolve)
	admin.POST("/reports/:id/dismiss", h.Reports.Dismiss)

	return []RouteRegistrar{
		auth, profile, users, catalog, listings, favorites,
		threads, stream, reviews, reports, admin,
	}
}
