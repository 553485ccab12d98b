package intervu

// Query documents.
const (
	QueryQuestions = `
    query IntervuQuestions($search: String, $skip: Int, $take: Int) {
      intervuQuestions(search: $search, skip: $skip, take: $take) {
        id
        title
        createdAt
        category { id name }
        answers { id content createdAt }
      }
    }
  `

	QueryCategories = `
    query IntervuCategories {
      intervuCategories { id name }
    }
  `
)

// Mutation documents.
const (
	MutationCreateCategory = `
    mutation CreateCategory($data: CategoryCreateInput!) {
      createIntervuCategory(data: $data) { id name }
    }
  `

	MutationCreateQuestion = `
    mutation CreateQuestion($data: QuestionCreateInput!) {
      createIntervuQuestion(data: $data) { id title category { id name } }
    }
  `

	MutationCreateAnswer = `
    mutation CreateAnswer($data: AnswerCreateInput!) {
      createIntervuAnswer(data: $data) { id content question { id } }
    }
  `

	MutationUpdateQuestion = `
    mutation UpdateQuestion($id: ID!, $data: QuestionUpdateInput!) {
      updateIntervuQuestion(id: $id, data: $data) { id title category { id name } }
    }
  `

	MutationDeleteQuestion = `
    mutation DeleteQuestion($id: ID!) {
      deleteIntervuQuestion(id: $id)
    }
  `

	MutationUpdateAnswer = `
    mutation UpdateAnswer($id: ID!, $data: AnswerUpdateInput!) {
      updateIntervuAnswer(id: $id, data: $data) { id content question { id } }
    }
  `

	MutationDeleteAnswer = `
    mutation DeleteAnswer($id: ID!) {
      deleteIntervuAnswer(id: $id)
    }
  `
)
