package recall

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recallai/recall"
	"github.com/recallai/recall/pkg/config"
	"github.com/recallai/recall/pkg/types"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [key phrases...]",
	Short: "Run one retrieval and print the result as JSON",
	Long: `Run the retrieval pipeline once from the command line.

Key phrases come from the arguments, or from stdin (one per line) when
no arguments are given. The full result object, including scoring
details and performance metadata, is printed to stdout as JSON.`,
	RunE: runRetrieve,
}

var (
	retrieveUser         string
	retrieveConversation string
	retrieveScenario     string
)

func init() {
	rootCmd.AddCommand(retrieveCmd)

	retrieveCmd.Flags().StringVar(&retrieveUser, "user", "", "User ID (required)")
	retrieveCmd.Flags().StringVar(&retrieveConversation, "conversation", "", "Conversation ID")
	retrieveCmd.Flags().StringVar(&retrieveScenario, "scenario", "neighborhood", "Traversal scenario (neighborhood, timeline, conceptual)")
	retrieveCmd.MarkFlagRequired("user")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	phrases := args
	if len(phrases) == 0 {
		var err error
		phrases, err = readPhrases(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read phrases from stdin: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := recall.Open(cmd.Context(), cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize Recall: %w", err)
	}
	defer client.Close(context.Background())

	result, err := client.Retrieve(cmd.Context(), types.RetrievalRequest{
		UserID:         retrieveUser,
		ConversationID: retrieveConversation,
		KeyPhrases:     phrases,
		Scenario:       types.ParseScenario(retrieveScenario),
	})
	if err != nil && result == nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if encodeErr := encoder.Encode(result); encodeErr != nil {
		return encodeErr
	}

	// A fatal retrieval still printed its structured result; exit
	// non-zero so scripts can tell.
	return err
}

func readPhrases(f *os.File) ([]string, error) {
	var phrases []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			phrases = append(phrases, line)
		}
	}
	return phrases, scanner.Err()
}
