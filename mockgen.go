//go:build gomock || generate

package fountain

//go:generate sh -c "go run go.uber.org/mock/mockgen -package fountain -self_package github.com/pitscout/fountain -destination mock_payload_handler_test.go github.com/pitscout/fountain PayloadHandler"
