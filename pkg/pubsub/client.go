package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub orders topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection used to announce placed orders.
type Client struct {
	client *pubsub.Client
	orders string
}

// NewClient connects to Pub/Sub (or the emulator named by PUBSUB_EMULATOR_HOST) and
// checks the orders topic. With cfg.CreateTopic a missing topic is created.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	orders, err := topicResourceName(projectID, cfg.OrdersTopic)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, orders: orders}

	created, err := c.ensureTopic(ctx, cfg.CreateTopic)
	if err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":   orders,
			"created": created,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) ensureTopic(ctx context.Context, create bool) (bool, error) {
	admin := c.client.TopicAdminClient
	_, err := admin.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.orders})
	switch {
	case err == nil:
		return false, nil
	case status.Code(err) != codes.NotFound:
		return false, fmt.Errorf("checking topic %s: %w", c.orders, err)
	case !create:
		return false, fmt.Errorf("topic %s does not exist", c.orders)
	}

	if _, err := admin.CreateTopic(ctx, &pubsubpb.Topic{Name: c.orders}); err != nil && status.Code(err) != codes.AlreadyExists {
		return false, fmt.Errorf("creating topic %s: %w", c.orders, err)
	}
	return true, nil
}

// OrdersPublisher returns the publisher for order events.
func (c *Client) OrdersPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Publisher(c.orders)
}

// Ping reports whether the orders topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	_, err := c.ensureTopic(ctx, false)
	return err
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// topicResourceName accepts a bare topic ID or a full projects/<p>/topics/<t> name.
func topicResourceName(projectID, name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", errNoTopic
	case strings.HasPrefix(name, "projects/"):
		parts := strings.Split(name, "/")
		if len(parts) != 4 || parts[2] != "topics" || parts[1] == "" || parts[3] == "" {
			return "", fmt.Errorf("malformed topic name %q", name)
		}
		return name, nil
	}
	return "projects/" + projectID + "/topics/" + name, nil
}
