package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"optifish/pkg/jwt"

	"golang.org/x/sync/errgroup"
)

// 配置
var (
	baseURL    = flag.String("url", "http://localhost:3000/api", "group buy API base URL")
	secret     = flag.String("secret", "my_secret_key", "jwt secret, must match the service")
	productID  = flag.Int64("product", 1, "product to open the group buy on")
	tier       = flag.Int("tier", 5, "max users of the group buy")
	totalUsers = flag.Int("users", 50, "concurrent joiners")
)

var client = &http.Client{Timeout: 5 * time.Second}

func post(token, path string, body interface{}) (int, map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, *baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, nil
}

func main() {
	flag.Parse()
	tokens := jwt.NewManager(*secret, "optifish", time.Hour)

	// 1. 发起团购
	creator, err := tokens.GenerateToken(1000, "creator", "")
	if err != nil {
		fmt.Println("token:", err)
		return
	}
	status, created, err := post(creator, "/group-buys", map[string]interface{}{"productId": *productID, "maxUsers": *tier})
	if err != nil || status != http.StatusCreated {
		fmt.Printf("create failed: status=%d body=%v err=%v\n", status, created, err)
		return
	}
	groupBuyID := fmt.Sprint(created["groupBuyId"])
	fmt.Printf("🚀 group buy %s opened, tier %d, %d joiners\n", groupBuyID, *tier, *totalUsers)
	fmt.Println("------------------------------------------------")

	// 2. 并发参团
	var joined, full, failed atomic.Int64
	var g errgroup.Group
	start := time.Now()
	for i := 1; i <= *totalUsers; i++ {
		userID := int64(1000 + i)
		g.Go(func() error {
			token, err := tokens.GenerateToken(userID, "", "")
			if err != nil {
				return err
			}
			status, body, err := post(token, "/group-buys/"+groupBuyID+"/join", struct{}{})
			switch {
			case err != nil:
				fmt.Printf("[User %d] request failed: %v\n", userID, err)
				failed.Add(1)
			case status == http.StatusOK:
				fmt.Printf("🟢 [User %d] joined\n", userID)
				joined.Add(1)
			case body["code"] == "group_buy_full":
				full.Add(1)
			default:
				fmt.Printf("🔴 [User %d] %d %v\n", userID, status, body["error"])
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Println("load aborted:", err)
	}

	fmt.Println("------------------------------------------------")
	fmt.Printf("🏁 done in %v\n", time.Since(start))
	fmt.Printf("✅ joined: %d (expected %d)\n", joined.Load(), *tier-1)
	fmt.Printf("🈵 full: %d\n", full.Load())
	fmt.Printf("❌ other: %d\n", failed.Load())
}
