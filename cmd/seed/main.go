// Command seed populates the database with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"vibefeed/internal/bootstrap"
	"vibefeed/internal/config"
	"vibefeed/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	comments := flag.Int("comments", 5, "Maximum comments per post")
	chats := flag.Int("chats", 4, "Number of chat rooms with history")
	messages := flag.Int("messages", 30, "Messages per chat room")
	maxDays := flag.Int("days", 7, "Spread post timestamps over this many days")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer rt.Close(ctx)

	sum, err := seed.Seed(ctx, rt.DB, rt.ChatRepo, seed.Options{
		NumUsers:        *numUsers,
		NumPosts:        *numPosts,
		CommentsPerPost: *comments,
		NumChats:        *chats,
		MessagesPerChat: *messages,
		MaxDays:         *maxDays,
		ShouldClean:     *shouldClean,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}
	log.Printf("✨ All done! users=%d posts=%d comments=%d messages=%d", sum.Users, sum.Posts, sum.Comments, sum.Messages)
}
