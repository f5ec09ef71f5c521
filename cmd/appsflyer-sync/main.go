package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"appsflyer-sync/internal/etl"
)

func main() {
	h := etl.NewAppsFlyerSync(nil, etl.OpenWarehouse)
	lambda.Start(h.Handle)
}
