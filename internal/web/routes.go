package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	statusHandler := handlers.NewStatusHandler(s.config, s.rt)
	collectionHandler := handlers.NewCollectionHandler(s.config, s.rt)
	modelHandler := handlers.NewModelHandler(s.config, s.rt)
	recognizeHandler := handlers.NewRecognizeHandler(s.config, s.rt)
	settingsHandler := handlers.NewSettingsHandler(s.config, s.rt)
	peopleHandler := handlers.NewPeopleHandler(s.config, s.rt)
	streamHandler := handlers.NewStreamHandler(s.hub)
	eventsHandler := handlers.NewEventsHandler(s.rt, s.origins)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// Long-lived streams, no request timeout
	s.router.Get("/video_feed", streamHandler.VideoFeed)
	s.router.Get("/api/v1/events", eventsHandler.Stream)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Retraining reads the whole dataset
		r.With(chiMiddleware.Timeout(constants.TrainTimeout)).Post("/model/train", modelHandler.Train)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			// Status
			r.Get("/status", statusHandler.Get)
			r.Get("/stats", statusHandler.Stats)
			r.Post("/stats/reset", statusHandler.ResetStats)

			// Collection
			r.Get("/collection", collectionHandler.Get)
			r.Post("/collection/start", collectionHandler.Start)
			r.Post("/collection/stop", collectionHandler.Stop)

			// Model
			r.Get("/model", modelHandler.Info)
			r.Post("/model/accuracy", modelHandler.Accuracy)

			// Recognition
			r.Post("/recognize", recognizeHandler.Upload)
			r.Post("/recognize/base64", recognizeHandler.Base64)

			// Settings
			r.Get("/settings", settingsHandler.Get)
			r.Put("/settings/thresholds", settingsHandler.Thresholds)
			r.Put("/settings/eyes", settingsHandler.Eyes)
			r.Put("/settings/align", settingsHandler.Align)
			r.Put("/settings/cascade", settingsHandler.Cascade)
			r.Put("/settings/camera", settingsHandler.Camera)

			// People
			r.Get("/people", peopleHandler.List)
			r.Delete("/people/{key}", peopleHandler.Delete)
		})
	})
}
