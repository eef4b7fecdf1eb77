// Package events connects the services to RabbitMQ.
//
// Publisher emits identity domain events ("user.registered") on a topic exchange.
// Consumer applies encoding pipeline results ("video.encoded", "video.failed")
// to the video catalog.
package events
