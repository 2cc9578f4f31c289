package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/reverba/api/internal/auth"
	"github.com/reverba/api/internal/config"
	"github.com/reverba/api/internal/database"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/store"
	"github.com/reverba/api/internal/task"
)

// Seeds a user's word list from a file and prints an access token for them.
//
// Each non-comment line is "word | meaning | example | priority"; example and
// priority may be omitted.
func main() {
	filePath := flag.String("file", "data/words.txt", "Path to word list file")
	email := flag.String("email", "", "Email of the user to seed (created if missing)")
	name := flag.String("name", "", "Display name for a new user")
	flag.Parse()

	if *email == "" {
		log.Fatal("-email is required")
	}

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	s := store.New(db)
	ctx := context.Background()

	user, err := s.GetUserByEmail(ctx, *email)
	if errors.Is(err, task.ErrNotFound) {
		user = &model.User{Email: *email, Name: *name, IsActive: true}
		if err := s.CreateUser(ctx, user); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		log.Printf("Created user %s", user.ID)
	} else if err != nil {
		log.Fatalf("Failed to look up user: %v", err)
	}

	file, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("Failed to open word list: %v", err)
	}
	defer file.Close()

	words, err := loadWordList(file)
	if err != nil {
		log.Fatalf("Failed to load word list: %v", err)
	}
	log.Printf("Loaded %d words from file", len(words))

	inserted, skipped := 0, 0
	for i := range words {
		w := words[i]
		w.UserID = user.ID
		if err := s.CreateWord(ctx, &w); err != nil {
			if errors.Is(err, task.ErrConflict) {
				skipped++
				continue
			}
			log.Fatalf("Failed to insert %q: %v", w.Word, err)
		}
		inserted++
	}
	log.Printf("Seeding complete. inserted=%d, skipped=%d", inserted, skipped)

	token, err := auth.GenerateAccessToken(user, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to generate access token: %v", err)
	}
	fmt.Println(token)
}

func loadWordList(r io.Reader) ([]model.Word, error) {
	var words []model.Word
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		words = append(words, w)
	}
	return words, scanner.Err()
}

func parseLine(line string) (model.Word, error) {
	fields := strings.Split(line, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	w := model.Word{Word: fields[0], Priority: model.MinPriority, State: model.WordStateActive}
	if w.Word == "" {
		return w, errors.New("empty word")
	}
	if len(fields) > 1 {
		w.Meaning = fields[1]
	}
	if len(fields) > 2 {
		w.Example = fields[2]
	}
	if len(fields) > 3 && fields[3] != "" {
		p, err := strconv.Atoi(fields[3])
		if err != nil || !model.ValidPriority(p) {
			return w, fmt.Errorf("priority must be 1-4, got %q", fields[3])
		}
		w.Priority = p
	}
	if len(fields) > 4 {
		return w, fmt.Errorf("too many fields")
	}
	return w, nil
}
