package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/memes-airdrop/internal/config"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/retry"
)

// Client is a connected RPC client together with the chain id it signs for
type Client struct {
	eth       *ethclient.Client
	chainID   *big.Int
	endpoints *Endpoints
}

// dialFunc connects to url and returns the node's chain id
type dialFunc func(ctx context.Context, url string) (*ethclient.Client, *big.Int, error)

// Dial connects to the configured RPC endpoint, failing over to the secondary URL
// and retrying with backoff. A zero ChainID in cfg is read from the node.
func Dial(ctx context.Context, cfg *config.ChainConfig, retryCfg *retry.RetryConfig) (*Client, error) {
	return dialWith(ctx, cfg, retryCfg, dialEthClient)
}

func dialWith(ctx context.Context, cfg *config.ChainConfig, retryCfg *retry.RetryConfig, dial dialFunc) (*Client, error) {
	endpoints, err := NewEndpoints(cfg.RPCPrimary, cfg.RPCSecondary)
	if err != nil {
		return nil, apperrors.NewConfigurationError("CHAIN_RPC_PRIMARY", err)
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	if retryCfg.ShouldRetry == nil {
		withPolicy := *retryCfg
		withPolicy.ShouldRetry = apperrors.IsRetryable
		retryCfg = &withPolicy
	}

	logger := logging.FromContext(ctx)

	var (
		eth     *ethclient.Client
		chainID *big.Int
	)
	err = retry.Do(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		url := endpoints.Current()
		c, id, dialErr := dial(ctx, url)
		if dialErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			endpoints.RecordFailure()
			if shouldFailover(dialErr) {
				if foErr := endpoints.Failover(); foErr == nil {
					logger.WithField("endpoint", endpoints.Health().CurrentURL).Warn("Failing over to alternate RPC endpoint")
				}
			}
			return apperrors.NewProviderError(redactURL(url), dialErr)
		}
		endpoints.RecordSuccess()
		eth, chainID = c, id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to chain rpc: %w", err)
	}

	if cfg.ChainID != 0 && chainID != nil && chainID.Int64() != cfg.ChainID {
		if eth != nil {
			eth.Close()
		}
		return nil, apperrors.NewConfigurationError("CHAIN_ID",
			fmt.Errorf("node reports chain id %s, configured %d", chainID, cfg.ChainID))
	}

	logger.WithFields(map[string]interface{}{
		"endpoint": endpoints.Health().CurrentURL,
		"chainId":  chainID.String(),
	}).Info("Connected to chain")

	return &Client{eth: eth, chainID: chainID, endpoints: endpoints}, nil
}

func dialEthClient(ctx context.Context, url string) (*ethclient.Client, *big.Int, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	c, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	id, err := c.ChainID(dialCtx)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	return c, id, nil
}

// Eth returns the underlying go-ethereum client
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// ChainID returns the chain id transactions are signed for
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Health returns the endpoint health snapshot
func (c *Client) Health() *EndpointHealth {
	return c.endpoints.Health()
}

// Close closes the RPC connection
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}
